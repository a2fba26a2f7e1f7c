package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is an opaque server identifier. The backend emits integers but the
// client never does arithmetic on them, so they are kept as strings.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so they round-trip with the backend.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Tokens is the access/refresh pair issued by login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

func (t Tokens) Valid() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

type Room struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Emoji         string `json:"emoji"`
	DocumentCount int    `json:"document_count"`
	MessageCount  int    `json:"message_count"`
	CreatedAt     string `json:"created_at"`
}

// RoomInput carries create and update payloads. Nil fields are omitted so an
// update only touches what was set.
type RoomInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Emoji       *string `json:"emoji,omitempty"`
}

// NewRoomInput builds a create payload, leaving empty values unset.
func NewRoomInput(name, description, emoji string) RoomInput {
	var in RoomInput
	if name = strings.TrimSpace(name); name != "" {
		in.Name = &name
	}
	if description = strings.TrimSpace(description); description != "" {
		in.Description = &description
	}
	if emoji = strings.TrimSpace(emoji); emoji != "" {
		in.Emoji = &emoji
	}
	return in
}

type Document struct {
	ID         ID     `json:"id"`
	Filename   string `json:"filename"`
	UploadedAt string `json:"uploaded_at"`
	Processed  bool   `json:"processed"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var raw struct {
		plain
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document(raw.plain)
	if d.UploadedAt == "" {
		d.UploadedAt = raw.CreatedAt
	}
	return nil
}

// UploadResult is returned by the upload endpoint; ID is what gets polled.
type UploadResult struct {
	ID       ID     `json:"id"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	Message  string `json:"message"`
}

type MessageType string

const (
	MessageUser MessageType = "user"
	MessageAI   MessageType = "ai"
)

type Source struct {
	Filename string `json:"filename"`
	Page     *int   `json:"page,omitempty"`
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw struct {
		Filename   string `json:"filename"`
		Page       *int   `json:"page"`
		PageNumber *int   `json:"page_number"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Filename = raw.Filename
	s.Page = raw.Page
	if s.Page == nil {
		s.Page = raw.PageNumber
	}
	return nil
}

func (s Source) String() string {
	if s.Page == nil {
		return s.Filename
	}
	return fmt.Sprintf("%s (p. %d)", s.Filename, *s.Page)
}

type Message struct {
	ID          ID          `json:"id,omitempty"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	Sources     []Source    `json:"sources,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	if m.Timestamp == "" {
		m.Timestamp = raw.CreatedAt
	}
	return nil
}

// ChatAnswer is the response to a question.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses the timestamp formats the backend emits. Values without a
// zone are taken as UTC.
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
