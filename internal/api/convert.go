package api

import (
	"fmt"
	"time"

	"github.com/njoerd114/remindsync/internal/attach"
	"github.com/njoerd114/remindsync/internal/model"
)

// reminderDTO is the wire representation of a reminder. Dates carry full
// time-of-day as RFC 3339 so local millisecond precision survives the round
// trip; lastModified is Unix milliseconds.
type reminderDTO struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Notify       bool             `json:"notify"`
	NotifyDate   string           `json:"notifyDate,omitempty"`
	Date         string           `json:"date"`
	VoiceNotes   []attach.Payload `json:"voiceNotes,omitempty"`
	Attachments  []attach.Payload `json:"attachments,omitempty"`
	LastModified int64            `json:"lastModified"`
}

// toDTO builds the outbound wire form of a reminder. Attachment and voice
// note files are encoded (or passed through as references) by the codec.
func toDTO(r *model.Reminder, codec *attach.Codec) *reminderDTO {
	dto := &reminderDTO{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Notify:       r.Notify,
		Date:         r.Date.UTC().Format(time.RFC3339Nano),
		VoiceNotes:   codec.Encode(r.VoiceNotes),
		Attachments:  codec.Encode(r.Attachments),
		LastModified: r.LastModified.UnixMilli(),
	}
	if r.NotifyDate != nil {
		dto.NotifyDate = r.NotifyDate.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

// toModel converts an inbound wire reminder, materialising attachment
// payloads into local files via the codec. The returned reminder carries no
// LocalID and is not marked synced; the sync engine decides both.
func toModel(dto *reminderDTO, codec *attach.Codec) (*model.Reminder, error) {
	date, err := time.Parse(time.RFC3339Nano, dto.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", dto.Date, err)
	}

	r := &model.Reminder{
		ID:           dto.ID,
		Title:        dto.Title,
		Description:  dto.Description,
		Date:         date,
		Notify:       dto.Notify,
		VoiceNotes:   codec.Decode(dto.VoiceNotes),
		Attachments:  codec.Decode(dto.Attachments),
		LastModified: time.UnixMilli(dto.LastModified).UTC(),
	}

	if dto.NotifyDate != "" {
		nd, err := time.Parse(time.RFC3339Nano, dto.NotifyDate)
		if err != nil {
			return nil, fmt.Errorf("invalid notify date %q: %w", dto.NotifyDate, err)
		}
		r.NotifyDate = &nd
	}

	return r, nil
}
