package workspace

import (
	"context"
	"strings"
	"sync"

	"docchat/internal/api"
	"docchat/internal/guard"
)

// EmojiChoices are offered when creating a room; the first is the default.
var EmojiChoices = []string{"📁", "🚀", "💡", "🤖", "📚", "🧠", "🔬", "💼", "📝", "🔥"}

// Dashboard is the room list.
type Dashboard struct {
	svc    *Service
	mu     sync.Mutex
	rooms  []api.Room
	loaded bool
}

func (s *Service) Dashboard() *Dashboard {
	return &Dashboard{svc: s}
}

func (d *Dashboard) Load(ctx context.Context) ([]api.Room, error) {
	rooms, err := d.svc.client.Rooms().List(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.rooms = rooms
	d.loaded = true
	d.mu.Unlock()
	return d.Rooms(), nil
}

func (d *Dashboard) Rooms() []api.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]api.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

// Empty is true once a load returned no rooms.
func (d *Dashboard) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded && len(d.rooms) == 0
}

// CanCreate reports whether another room fits under the limit.
func (d *Dashboard) CanCreate() bool {
	d.mu.Lock()
	n := len(d.rooms)
	d.mu.Unlock()
	return d.svc.limits.CheckRoomCreate(n) == nil
}

// Create checks the room limit against the loaded list before calling the
// server.
func (d *Dashboard) Create(ctx context.Context, name, description, emoji string) (api.Room, error) {
	if strings.TrimSpace(name) == "" {
		return api.Room{}, &guard.Violation{Rule: "room_name", Message: "Room name is required."}
	}
	d.mu.Lock()
	n := len(d.rooms)
	d.mu.Unlock()
	if err := d.svc.limits.CheckRoomCreate(n); err != nil {
		return api.Room{}, err
	}
	if emoji == "" {
		emoji = EmojiChoices[0]
	}
	room, err := d.svc.client.Rooms().Create(ctx, api.NewRoomInput(name, description, emoji))
	if err != nil {
		return api.Room{}, err
	}
	d.mu.Lock()
	d.rooms = append([]api.Room{room}, d.rooms...)
	d.loaded = true
	d.mu.Unlock()
	return room, nil
}

func (d *Dashboard) Update(ctx context.Context, id api.ID, in api.RoomInput) (api.Room, error) {
	room, err := d.svc.client.Rooms().Update(ctx, id, in)
	if err != nil {
		return api.Room{}, err
	}
	d.mu.Lock()
	for i := range d.rooms {
		if d.rooms[i].ID == id {
			d.rooms[i] = room
		}
	}
	d.mu.Unlock()
	return room, nil
}

func (d *Dashboard) Delete(ctx context.Context, id api.ID) error {
	if err := d.svc.client.Rooms().Delete(ctx, id); err != nil {
		return err
	}
	d.mu.Lock()
	kept := d.rooms[:0]
	for _, r := range d.rooms {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	d.rooms = kept
	d.mu.Unlock()
	return nil
}
