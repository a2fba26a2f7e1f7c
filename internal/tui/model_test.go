package tui

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/devserver"
	"docchat/internal/guard"
	"docchat/internal/poll"
	"docchat/internal/session"
	"docchat/internal/storage"
	"docchat/internal/workspace"
)

// driver is a minimal stand-in for the bubbletea runtime: commands run on
// goroutines and their messages are fed back through Update on the test
// goroutine.
type driver struct {
	t       *testing.T
	model   *Model
	manager *session.Manager
	msgs    chan tea.Msg
	server  *devserver.Server
}

func newDriver(t *testing.T, limits guard.Limits) *driver {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	store, err := storage.Open(ctx, "sqlite://file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := devserver.DefaultConfig()
	cfg.ProcessingDelay = 0
	cfg.RegisterPerDay = 0
	srv := devserver.New(store, cfg, nil)
	httpSrv := httptest.NewServer(srv.Handler())

	manager := session.NewManager(session.NewMemoryStore(api.Tokens{}), nil)
	client := api.New(httpSrv.URL+"/api/v1", manager)
	svc := workspace.NewService(client, limits, poll.Options{Interval: 5 * time.Millisecond, MaxAttempts: 200}, nil)

	d := &driver{t: t, manager: manager, msgs: make(chan tea.Msg, 256), server: srv}
	d.model = NewModel(ctx, Deps{Session: manager, Workspace: svc, ServerURL: httpSrv.URL, BrowseDir: t.TempDir()})
	d.model.SetSender(func(msg tea.Msg) { d.msgs <- msg })
	subscribeSession(manager, func(msg tea.Msg) { d.msgs <- msg })

	t.Cleanup(func() {
		d.model.closeRoom()
		cancel()
		httpSrv.Close()
		srv.Close()
		manager.Dispose()
		_ = store.Close()
	})
	return d
}

func (d *driver) exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		if msg := cmd(); msg != nil {
			d.msgs <- msg
		}
	}()
}

func (d *driver) press(msg tea.KeyMsg) {
	_, cmd := d.model.Update(msg)
	d.exec(cmd)
}

func (d *driver) typeText(text string) {
	d.press(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func (d *driver) key(kind tea.KeyType) {
	d.press(tea.KeyMsg{Type: kind})
}

// until pumps messages until cond holds.
func (d *driver) until(what string, cond func() bool) {
	d.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case msg := <-d.msgs:
			switch typed := msg.(type) {
			case tea.BatchMsg:
				for _, cmd := range typed {
					d.exec(cmd)
				}
			case spinner.TickMsg, tea.QuitMsg:
			default:
				_, cmd := d.model.Update(msg)
				d.exec(cmd)
			}
		case <-deadline:
			d.t.Fatalf("timed out waiting for %s (screen=%d err=%q notice=%q)", what, d.model.screen, d.model.errMsg, d.model.notice)
		}
	}
}

func (d *driver) start() {
	d.exec(d.model.Init())
	d.until("login screen", func() bool { return d.model.screen == screenLogin })
}

func (d *driver) register(name, email, password string) {
	d.key(tea.KeyCtrlR)
	d.typeText(name)
	d.key(tea.KeyTab)
	d.typeText(email)
	d.key(tea.KeyTab)
	d.typeText(password)
	d.key(tea.KeyEnter)
	d.until("dashboard", func() bool {
		return d.model.screen == screenDashboard && !d.model.roomsLoading && !d.model.busy
	})
}

func (d *driver) createRoom(name string) {
	d.typeText("n")
	d.typeText(name)
	d.key(tea.KeyEnter)
	d.until("room created", func() bool { return !d.model.busy && d.model.dashMode == dashList })
}

func (d *driver) openSelectedRoom() {
	d.key(tea.KeyEnter)
	d.until("room loaded", func() bool {
		return d.model.screen == screenRoom && d.model.room != nil && !d.model.busy && d.model.room.Room().Name != ""
	})
}

func TestStartsOnLoginWithoutSession(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	if d.model.intent != authLogin {
		t.Fatalf("expected login form")
	}
	if !strings.Contains(d.model.View(), "Log in") {
		t.Fatalf("login view missing title:\n%s", d.model.View())
	}
}

func TestLoginValidationStaysLocal(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()

	d.typeText("not-an-email")
	d.key(tea.KeyTab)
	d.typeText("secret1")
	d.key(tea.KeyEnter)
	if d.model.errMsg != "Enter a valid email address." {
		t.Fatalf("errMsg = %q", d.model.errMsg)
	}
	if d.model.busy {
		t.Fatalf("invalid form must not start a request")
	}
}

func TestWrongPasswordKeepsLoginScreen(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	d.register("Ada", "ada@example.com", "secret1")

	d.typeText("l")
	d.until("login after logout", func() bool { return d.model.screen == screenLogin && !d.model.busy })

	d.typeText("ada@example.com")
	d.key(tea.KeyTab)
	d.typeText("wrong-password")
	d.key(tea.KeyEnter)
	d.until("login failure", func() bool { return !d.model.busy && d.model.errMsg != "" })
	if d.model.errMsg != "Incorrect email or password." {
		t.Fatalf("errMsg = %q", d.model.errMsg)
	}
	if d.model.screen != screenLogin {
		t.Fatalf("screen = %d", d.model.screen)
	}
}

func TestRegisterLandsOnEmptyDashboard(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	d.register("Ada Lovelace", "ada@example.com", "secret1")

	if !d.model.dashboard.Empty() {
		t.Fatalf("expected no rooms")
	}
	d.until("user loaded", func() bool { return d.model.user != nil })
	view := d.model.View()
	if !strings.Contains(view, "No rooms yet") || !strings.Contains(view, "Welcome, Ada Lovelace") {
		t.Fatalf("unexpected dashboard view:\n%s", view)
	}
	if d.manager.State() != session.StateAuthenticated {
		t.Fatalf("state = %v", d.manager.State())
	}
}

func TestCreateRoomAtLimitIsRejectedLocally(t *testing.T) {
	limits := guard.DefaultLimits()
	limits.MaxRooms = 1
	d := newDriver(t, limits)
	d.start()
	d.register("Ada", "ada@example.com", "secret1")

	d.createRoom("Biology")
	if got := len(d.model.dashboard.Rooms()); got != 1 {
		t.Fatalf("rooms = %d", got)
	}
	if room := d.model.dashboard.Rooms()[0]; room.Emoji != workspace.EmojiChoices[0] {
		t.Fatalf("emoji = %q", room.Emoji)
	}

	d.typeText("n")
	if d.model.dashMode != dashList {
		t.Fatalf("create form should not open at the limit")
	}
	if d.model.errMsg != "Maximum 1 rooms allowed." {
		t.Fatalf("errMsg = %q", d.model.errMsg)
	}
}

func TestDeleteRoomNeedsConfirmation(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	d.register("Ada", "ada@example.com", "secret1")
	d.createRoom("Scratch")

	d.typeText("d")
	if d.model.dashMode != dashConfirmDelete {
		t.Fatalf("expected confirmation prompt")
	}
	d.typeText("n")
	if len(d.model.dashboard.Rooms()) != 1 {
		t.Fatalf("room removed without confirmation")
	}
	d.typeText("d")
	d.typeText("y")
	d.until("room deleted", func() bool { return !d.model.busy && len(d.model.dashboard.Rooms()) == 0 })
}

func TestAskShowsPlaceholderThenAnswer(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	d.register("Ada", "ada@example.com", "secret1")
	d.createRoom("Biology")
	d.openSelectedRoom()

	d.typeText("What is in here?")
	d.key(tea.KeyEnter)
	entries := d.model.room.Thread().Entries()
	if len(entries) != 2 || !entries[1].Pending || entries[0].Content != "What is in here?" {
		t.Fatalf("expected question plus placeholder, got %+v", entries)
	}
	if d.model.chatInput.Value() != "" {
		t.Fatalf("input not cleared")
	}

	d.until("answer", func() bool { return !d.model.room.Thread().Busy() })
	entries = d.model.room.Thread().Entries()
	if len(entries) != 2 || entries[1].Pending || !strings.Contains(entries[1].Content, "no processed documents") {
		t.Fatalf("unexpected entries %+v", entries)
	}

	d.key(tea.KeyEsc)
	if d.model.screen != screenDashboard || d.model.room != nil {
		t.Fatalf("esc should leave the room")
	}
}

func TestUnauthorizedInRoomReturnsToLogin(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	d.start()
	d.register("Ada", "ada@example.com", "secret1")
	d.createRoom("Biology")
	d.openSelectedRoom()

	if err := d.manager.SignIn(context.Background(), api.Tokens{AccessToken: "expired", RefreshToken: "expired"}); err != nil {
		t.Fatal(err)
	}
	d.typeText("hello?")
	d.key(tea.KeyEnter)
	d.until("login screen", func() bool { return d.model.screen == screenLogin })

	if d.model.room != nil {
		t.Fatalf("room should be closed")
	}
	if d.manager.Has() {
		t.Fatalf("tokens should be cleared")
	}
	if !strings.Contains(d.model.notice, "session ended") {
		t.Fatalf("notice = %q", d.model.notice)
	}
}

func TestUploadFromPickerPollsUntilProcessed(t *testing.T) {
	d := newDriver(t, guard.DefaultLimits())
	dir := d.model.browseDir
	text := strings.Repeat("Photosynthesis turns light into chemical energy. ", 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "photo.png"), []byte{0x89, 'P', 'N', 'G'}, 0o600); err != nil {
		t.Fatal(err)
	}

	d.start()
	d.register("Ada", "ada@example.com", "secret1")
	d.createRoom("Plants")
	d.openSelectedRoom()

	d.key(tea.KeyCtrlU)
	if d.model.focus != focusPicker {
		t.Fatalf("picker did not open")
	}
	target := -1
	for i, item := range d.model.picker.items {
		if item.Name == "photo.png" {
			t.Fatalf("picker should hide unsupported files")
		}
		if item.Name == "notes.txt" {
			target = i
		}
	}
	if target < 0 {
		t.Fatalf("notes.txt not listed: %+v", d.model.picker.items)
	}
	d.model.picker.cursor = target
	d.key(tea.KeyEnter)
	if d.model.uploading != "notes.txt" {
		t.Fatalf("uploading = %q", d.model.uploading)
	}

	d.until("document processed", func() bool {
		docs := d.model.room.Documents()
		return d.model.uploading == "" && len(docs) == 1 && docs[0].Processed && len(d.model.room.Processing()) == 0
	})
	if d.model.errMsg != "" {
		t.Fatalf("unexpected error %q", d.model.errMsg)
	}
}

func TestBrowseDirectoryFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "A.txt", "image.png", ".hidden.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}

	items, err := browseDirectory(dir, guard.Extensions())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, item := range items {
		names = append(names, item.Name)
	}
	want := []string{"..", "sub", "A.txt", "b.pdf"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if items[2].SizeLabel() != "1 B" {
		t.Fatalf("size label = %q", items[2].SizeLabel())
	}
}

func TestVisibleWindow(t *testing.T) {
	cases := []struct {
		cursor, total, height int
		start, end            int
	}{
		{0, 3, 10, 0, 3},
		{0, 20, 5, 0, 5},
		{10, 20, 5, 8, 13},
		{19, 20, 5, 15, 20},
	}
	for _, tc := range cases {
		start, end := visibleWindow(tc.cursor, tc.total, tc.height)
		if start != tc.start || end != tc.end {
			t.Fatalf("visibleWindow(%d,%d,%d) = %d,%d", tc.cursor, tc.total, tc.height, start, end)
		}
	}
}
