package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docchat/internal/api"
	"docchat/internal/guard"
)

func startLocal(t *testing.T, tweaks ...func(*Config)) (*Client, *ServerHandle) {
	t.Helper()
	isolateEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.DBPath = "sqlite://file:" + t.Name() + "-server?mode=memory&cache=shared"
	cfg.Server.ProcessingDelayMS = 20
	cfg.Server.RegisterPerDay = 0
	cfg.Data.DBPath = "sqlite://file:" + t.Name() + "-client?mode=memory&cache=shared"
	cfg.Poll.IntervalMS = 10
	cfg.Poll.MaxAttempts = 200
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handle, err := RunServer(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("RunServer: %v", err)
	}
	if err := WaitForServer(handle.Addr(), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	cfg.API.URL = handle.BaseURL()

	client, err := OpenClient(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("OpenClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		_ = handle.Wait()
	})
	return client, handle
}

func TestHeadlessRequiresSession(t *testing.T) {
	client, _ := startLocal(t)
	err := client.ListRooms(context.Background(), io.Discard)
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestHeadlessUploadWaitAndAsk(t *testing.T) {
	client, _ := startLocal(t)
	ctx := context.Background()

	if err := client.Register(ctx, "Grace", "grace@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !client.Session.Has() {
		t.Fatalf("register should leave a stored session")
	}
	stored, err := client.Store.LoadClientTokens(ctx, client.Config.Data.Profile)
	if err != nil || stored == nil {
		t.Fatalf("tokens not persisted: %v", err)
	}

	room, err := client.Workspace.Dashboard().Create(ctx, "Compilers", "", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	path := filepath.Join(t.TempDir(), "cobol.txt")
	text := strings.Repeat("COBOL programs are compiled before they run on the mainframe. ", 3)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := client.Upload(ctx, room.ID, path, true, &out); err != nil {
		t.Fatalf("Upload: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "cobol.txt is ready.") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := client.Ask(ctx, room.ID, "When are COBOL programs compiled?", &out); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(out.String(), "Sources: cobol.txt (p. 1)") {
		t.Fatalf("unexpected answer:\n%s", out.String())
	}

	out.Reset()
	if err := client.ListRooms(ctx, &out); err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if !strings.Contains(out.String(), "Compilers") || !strings.Contains(out.String(), "1 docs") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	stored, err = client.Store.LoadClientTokens(ctx, client.Config.Data.Profile)
	if err != nil || stored != nil {
		t.Fatalf("tokens should be cleared, got %+v (%v)", stored, err)
	}
}

func TestHeadlessUploadRejectedLocally(t *testing.T) {
	client, _ := startLocal(t)
	ctx := context.Background()
	if err := client.Register(ctx, "Grace", "grace@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	room, err := client.Workspace.Dashboard().Create(ctx, "Images", "", "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o600); err != nil {
		t.Fatal(err)
	}
	err = client.Upload(ctx, room.ID, path, false, io.Discard)
	var violation *guard.Violation
	if !errors.As(err, &violation) || violation.Rule != guard.RuleFileType {
		t.Fatalf("expected file type violation, got %v", err)
	}
	if msg := api.ErrorMessage(err); msg != "Only PDF and TXT files are allowed." {
		t.Fatalf("message = %q", msg)
	}
}

func TestBadLoginLeavesSessionEmpty(t *testing.T) {
	client, _ := startLocal(t)
	err := client.Login(context.Background(), "nobody@example.com", "whatever")
	if !errors.Is(err, api.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if client.Session.Has() {
		t.Fatalf("session should stay empty")
	}
}

func TestHeadlessWaitStopsWhenDocumentDeleted(t *testing.T) {
	client, _ := startLocal(t, func(cfg *Config) {
		cfg.Server.ProcessingDelayMS = 60_000
		cfg.Poll.MaxAttempts = 100_000
	})
	ctx := context.Background()
	if err := client.Register(ctx, "Grace", "grace@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	room, err := client.Workspace.Dashboard().Create(ctx, "Drafts", "", "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "draft.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("A draft that will be deleted while it is processed. ", 3)), 0o600); err != nil {
		t.Fatal(err)
	}

	go func() {
		for i := 0; i < 200; i++ {
			docs, err := client.API.Documents().List(ctx, room.ID)
			if err == nil && len(docs) == 1 {
				_ = client.API.Documents().Delete(ctx, docs[0].ID)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- client.Upload(ctx, room.ID, path, true, io.Discard) }()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "deleted before processing finished") {
			t.Fatalf("expected deleted error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("upload --wait kept polling a deleted document")
	}
}
