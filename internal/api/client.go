package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/njoerd114/remindsync/internal/attach"
	"github.com/njoerd114/remindsync/internal/model"
)

const remindersPath = "/api/v1/reminders"

// defaultTimeout bounds each individual request; a timed-out call is treated
// like any other per-record failure by the sync engine.
const defaultTimeout = 30 * time.Second

// StatusError reports a non-2xx response from the reminder service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Code)
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client talks to the remote reminder service over its JSON REST API.
// Create one with [NewClient].
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	codec   *attach.Codec
	log     *slog.Logger
}

// NewClient creates a Client for the service at baseURL. token, when
// non-empty, is sent as a bearer token on every request. codec handles
// attachment payloads on both directions.
func NewClient(baseURL, token string, codec *attach.Codec, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: defaultTimeout},
		codec:   codec,
		log:     logger,
	}
}

// Ping checks the service is reachable and the token accepted, with retry.
func (c *Client) Ping(ctx context.Context) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := c.do(ctx, http.MethodGet, remindersPath, nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("ping reminder service: %w", err)
	}
	return nil
}

// List fetches the full remote reminder set, with retry.
func (c *Client) List(ctx context.Context) ([]*model.Reminder, error) {
	var data json.RawMessage
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		data, callErr = c.do(ctx, http.MethodGet, remindersPath, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}

	var dtos []reminderDTO
	if len(data) > 0 {
		if err := json.Unmarshal(data, &dtos); err != nil {
			return nil, fmt.Errorf("parsing reminder list: %w", err)
		}
	}

	result := make([]*model.Reminder, 0, len(dtos))
	for i := range dtos {
		r, err := toModel(&dtos[i], c.codec)
		if err != nil {
			return nil, fmt.Errorf("parsing reminder %d: %w", dtos[i].ID, err)
		}
		result = append(result, r)
	}
	return result, nil
}

// Create pushes a new reminder and returns the server's representation with
// its authoritative id. Not retried: a replay after an ambiguous failure
// could create the reminder twice.
func (c *Client) Create(ctx context.Context, r *model.Reminder) (*model.Reminder, error) {
	dto := toDTO(r, c.codec)
	data, err := c.do(ctx, http.MethodPost, remindersPath, dto)
	if err != nil {
		return nil, fmt.Errorf("creating reminder %q: %w", r.Title, err)
	}
	return c.parseReminder(data)
}

// Update replaces the remote reminder under r.ID, with retry (a PUT replay
// is harmless).
func (c *Client) Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error) {
	dto := toDTO(r, c.codec)
	path := fmt.Sprintf("%s/%d", remindersPath, r.ID)

	var data json.RawMessage
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		data, callErr = c.do(ctx, http.MethodPut, path, dto)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("updating reminder %d: %w", r.ID, err)
	}
	return c.parseReminder(data)
}

// Delete removes the remote reminder under id, with retry. Deleting an
// already-deleted reminder is not an error worth surfacing (the intent is
// satisfied), so 404 is swallowed.
func (c *Client) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("%s/%d", remindersPath, id)
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := c.do(ctx, http.MethodDelete, path, nil)
		return callErr
	})
	var se *StatusError
	if err != nil && errors.As(err, &se) && se.Code == http.StatusNotFound {
		c.log.Debug("reminder already gone remotely", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting reminder %d: %w", id, err)
	}
	return nil
}

// parseReminder decodes a single-reminder envelope payload.
func (c *Client) parseReminder(data json.RawMessage) (*model.Reminder, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response payload")
	}
	var dto reminderDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parsing reminder payload: %w", err)
	}
	return toModel(&dto, c.codec)
}

// do executes one request and unwraps the response envelope. body, when
// non-nil, is marshalled to JSON.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &StatusError{Code: resp.StatusCode, Message: "check api_token in your config"}
	}
	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return nil, &StatusError{Code: resp.StatusCode, Message: env.Message}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("service reported failure: %s", env.Message)
	}
	return env.Data, nil
}
