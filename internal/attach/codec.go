// Package attach converts reminder attachments and voice notes between local
// files and the transport payloads embedded in sync requests. Outbound, a
// local file becomes a base64 inline payload while an already-remote
// reference string is forwarded untouched. Inbound, an inline payload is
// decoded to a fresh local file and a reference is adopted as-is.
package attach

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/njoerd114/remindsync/internal/model"
)

// Payload is one attachment or voice note as it travels on the wire.
type Payload struct {
	Name string            `json:"name"`
	Kind model.PayloadKind `json:"kind,omitempty"`
	Data string            `json:"data"`
}

// legacySniffThreshold is the payload length above which an untagged payload
// is assumed to be an encoded blob rather than a path or reference string.
// Only consulted for payloads from servers that predate the kind tag.
const legacySniffThreshold = 512

// Codec reads and writes attachment files under dir. The clock is injectable
// so tests can force filename collisions.
type Codec struct {
	dir string
	now func() time.Time
	log *slog.Logger
}

// NewCodec creates a Codec that stores decoded files under dir, creating the
// directory if needed.
func NewCodec(dir string, logger *slog.Logger) (*Codec, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating attachment directory %q: %w", dir, err)
	}
	return &Codec{dir: dir, now: time.Now, log: logger}, nil
}

// Encode builds the outbound payloads for a path→name map. A path that
// denotes an existing regular file is read and base64-encoded; anything else
// is treated as a remote-issued reference and forwarded unchanged so pushed
// records never re-upload or corrupt content the server already holds.
func (c *Codec) Encode(entries map[string]string) []Payload {
	if len(entries) == 0 {
		return nil
	}
	payloads := make([]Payload, 0, len(entries))
	for path, name := range entries {
		payloads = append(payloads, c.encodeOne(path, name))
	}
	return payloads
}

func (c *Codec) encodeOne(path, name string) Payload {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.log.Debug("forwarding attachment reference", "name", name)
		return Payload{Name: name, Kind: model.PayloadReference, Data: path}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		// The record must still sync; ship an empty blob and keep the local
		// file for the next attempt.
		c.log.Error("reading attachment", "path", path, "error", err)
		return Payload{Name: name, Kind: model.PayloadInline, Data: ""}
	}

	return Payload{
		Name: name,
		Kind: model.PayloadInline,
		Data: base64.StdEncoding.EncodeToString(raw),
	}
}

// Decode materialises inbound payloads into a path→name map. Inline payloads
// are written to fresh files under the codec directory; references are
// adopted as the path directly. A payload that cannot be decoded or written
// degrades to using its raw data string as the path, so the rest of the
// record survives a malformed attachment.
func (c *Codec) Decode(payloads []Payload) map[string]string {
	if len(payloads) == 0 {
		return nil
	}
	entries := make(map[string]string, len(payloads))
	for _, p := range payloads {
		entries[c.decodeOne(p)] = p.Name
	}
	return entries
}

func (c *Codec) decodeOne(p Payload) string {
	kind := p.Kind
	if kind == "" {
		kind = sniffKind(p.Data)
	}
	if kind == model.PayloadReference {
		return p.Data
	}

	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		c.log.Error("decoding attachment payload", "name", p.Name, "error", err)
		return p.Data
	}

	path := c.uniquePath(p.Name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		c.log.Error("writing attachment file", "path", path, "error", err)
		return p.Data
	}
	return path
}

// uniquePath builds a collision-free destination filename by prefixing the
// current Unix-millisecond timestamp and suffixing a counter if two payloads
// with the same name arrive within the same millisecond.
func (c *Codec) uniquePath(name string) string {
	base := fmt.Sprintf("%d_%s", c.now().UnixMilli(), sanitizeName(name))
	path := filepath.Join(c.dir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(c.dir, fmt.Sprintf("%s.%d", base, i))
	}
}

// sniffKind classifies an untagged legacy payload. Short strings and strings
// containing path separators are references; long strings that survive a
// base64 decode are blobs.
func sniffKind(data string) model.PayloadKind {
	if len(data) < legacySniffThreshold || strings.ContainsAny(data, "/\\") {
		return model.PayloadReference
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return model.PayloadReference
	}
	return model.PayloadInline
}

// sanitizeName strips path separators from a display name before it is used
// in a filename.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "attachment"
	}
	return name
}
