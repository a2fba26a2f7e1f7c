// Package chat models a room conversation on the client side: loaded
// history plus the optimistic send cycle.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/api"
)

var (
	ErrEmptyQuestion = errors.New("chat: question is empty")
	ErrBusy          = errors.New("chat: a question is already in flight")
)

// Entry is one line of the conversation. Pending marks the placeholder shown
// while the assistant is answering.
type Entry struct {
	LocalID string
	api.Message
	Pending bool
	Failed  bool
}

// Sender is the chat endpoint.
type Sender interface {
	Ask(ctx context.Context, roomID api.ID, question string) (api.ChatAnswer, error)
}

// Thread keeps messages in arrival order.
type Thread struct {
	mu        sync.Mutex
	roomID    api.ID
	entries   []Entry
	pendingID string
	now       func() time.Time
}

func NewThread(roomID api.ID) *Thread {
	return &Thread{roomID: roomID, now: time.Now}
}

func (t *Thread) RoomID() api.ID { return t.roomID }

// Load replaces the thread with server history. It is meant to run once per
// room visit, before any send.
func (t *Thread) Load(history []api.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make([]Entry, 0, len(history)+2)
	for _, msg := range history {
		t.entries = append(t.entries, Entry{LocalID: localID(msg.ID), Message: msg})
	}
	t.pendingID = ""
}

// Begin appends the user's question and a pending assistant placeholder.
func (t *Thread) Begin(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingID != "" {
		return "", ErrBusy
	}
	ts := t.now().UTC().Format(time.RFC3339)
	t.entries = append(t.entries, Entry{
		LocalID: uuid.NewString(),
		Message: api.Message{MessageType: api.MessageUser, Content: question, Timestamp: ts},
	})
	t.pendingID = uuid.NewString()
	t.entries = append(t.entries, Entry{
		LocalID: t.pendingID,
		Message: api.Message{MessageType: api.MessageAI},
		Pending: true,
	})
	return question, nil
}

// Finish resolves the placeholder with the answer, or with an error bubble
// authored by the assistant. It is a no-op when nothing is pending.
func (t *Thread) Finish(answer api.ChatAnswer, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingID == "" {
		return
	}
	idx := t.indexLocked(t.pendingID)
	t.pendingID = ""
	if idx < 0 {
		return
	}
	entry := &t.entries[idx]
	entry.Pending = false
	entry.Timestamp = t.now().UTC().Format(time.RFC3339)
	if err != nil {
		entry.Failed = true
		entry.Content = "Error: " + api.ErrorMessage(err)
		entry.Sources = nil
		return
	}
	entry.Content = answer.Answer
	entry.Sources = answer.Sources
}

// Send runs Begin, the request and Finish in one call.
func (t *Thread) Send(ctx context.Context, sender Sender, question string) error {
	q, err := t.Begin(question)
	if err != nil {
		return err
	}
	answer, err := sender.Ask(ctx, t.roomID, q)
	t.Finish(answer, err)
	return err
}

// Busy reports whether an answer is outstanding.
func (t *Thread) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingID != ""
}

// Entries returns a copy of the conversation.
func (t *Thread) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Thread) indexLocked(id string) int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].LocalID == id {
			return i
		}
	}
	return -1
}

func localID(id api.ID) string {
	if id == "" {
		return uuid.NewString()
	}
	return "srv-" + string(id)
}
