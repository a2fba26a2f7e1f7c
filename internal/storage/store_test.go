package storage

import (
	"context"
	"errors"
	"testing"
)

func TestClientTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LoadClientTokens(ctx, "http://api")
	if err != nil {
		t.Fatalf("LoadClientTokens: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no tokens, got %+v", got)
	}

	if err := store.SaveClientTokens(ctx, "http://api", ClientTokens{Access: "a1", Refresh: "r1"}); err != nil {
		t.Fatalf("SaveClientTokens: %v", err)
	}
	if err := store.SaveClientTokens(ctx, "http://api", ClientTokens{Access: "a2", Refresh: "r2"}); err != nil {
		t.Fatalf("SaveClientTokens overwrite: %v", err)
	}
	if err := store.SaveClientTokens(ctx, "http://other", ClientTokens{Access: "x", Refresh: "y"}); err != nil {
		t.Fatalf("SaveClientTokens other: %v", err)
	}
	got, err = store.LoadClientTokens(ctx, "http://api")
	if err != nil || got == nil || got.Access != "a2" || got.Refresh != "r2" {
		t.Fatalf("unexpected tokens %+v (%v)", got, err)
	}

	if err := store.ClearClientTokens(ctx, "http://api"); err != nil {
		t.Fatalf("ClearClientTokens: %v", err)
	}
	got, err = store.LoadClientTokens(ctx, "http://api")
	if err != nil || got != nil {
		t.Fatalf("expected cleared tokens, got %+v (%v)", got, err)
	}
	other, _ := store.LoadClientTokens(ctx, "http://other")
	if other == nil {
		t.Fatalf("clearing one profile removed another")
	}
}

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "Alice@Example.com", "Alice", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected id > 0")
	}
	if _, err := store.CreateUser(ctx, "alice@example.com", "Other", []byte("hash2")); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	user, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user == nil || user.Name != "Alice" || user.ID != id {
		t.Fatalf("unexpected user: %+v", user)
	}
	missing, err := store.GetUserByID(ctx, id+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil user, got %+v (%v)", missing, err)
	}
}

func TestRoomsDocumentsMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice, _ := store.CreateUser(ctx, "alice@example.com", "Alice", []byte("h"))
	bob, _ := store.CreateUser(ctx, "bob@example.com", "Bob", []byte("h"))

	room, err := store.CreateRoom(ctx, alice, "Research", "papers", "📚")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if n, _ := store.CountRooms(ctx, alice); n != 1 {
		t.Fatalf("CountRooms = %d", n)
	}
	if other, _ := store.GetRoom(ctx, bob, room.ID); other != nil {
		t.Fatalf("bob must not see alice's room")
	}

	name := "Renamed"
	updated, err := store.UpdateRoom(ctx, alice, room.ID, RoomUpdate{Name: &name})
	if err != nil || updated.Name != "Renamed" || updated.Description != "papers" {
		t.Fatalf("UpdateRoom: %+v (%v)", updated, err)
	}

	docID, err := store.CreateDocument(ctx, Document{RoomID: room.ID, Filename: "a.txt", FileSize: 10, MIMEType: "text/plain", Pages: []string{"page one", "page two"}})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	docs, err := store.ListDocuments(ctx, room.ID)
	if err != nil || len(docs) != 1 || docs[0].Processed || len(docs[0].Pages) != 2 {
		t.Fatalf("ListDocuments: %+v (%v)", docs, err)
	}
	if err := store.MarkProcessed(ctx, docID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	doc, err := store.GetDocumentForUser(ctx, alice, docID)
	if err != nil || doc == nil || !doc.Processed {
		t.Fatalf("GetDocumentForUser: %+v (%v)", doc, err)
	}
	if foreign, _ := store.GetDocumentForUser(ctx, bob, docID); foreign != nil {
		t.Fatalf("bob must not see alice's document")
	}

	page := 2
	answer, err := store.AppendExchange(ctx,
		Message{RoomID: room.ID, UserID: alice, MessageType: "user", Content: "what?"},
		Message{RoomID: room.ID, UserID: alice, MessageType: "ai", Content: "that", Sources: []MessageSource{{DocumentID: docID, Filename: "a.txt", PageNumber: &page}}},
	)
	if err != nil || answer.ID == 0 {
		t.Fatalf("AppendExchange: %+v (%v)", answer, err)
	}
	history, err := store.ListMessages(ctx, room.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("ListMessages: %+v (%v)", history, err)
	}
	if history[0].MessageType != "user" || history[1].MessageType != "ai" || len(history[1].Sources) != 1 {
		t.Fatalf("unexpected history %+v", history)
	}

	rooms, err := store.ListRooms(ctx, alice)
	if err != nil || len(rooms) != 1 || rooms[0].DocumentCount != 1 || rooms[0].MessageCount != 2 {
		t.Fatalf("ListRooms: %+v (%v)", rooms, err)
	}

	deleted, err := store.DeleteRoom(ctx, alice, room.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteRoom: %v %v", deleted, err)
	}
	if n, _ := store.CountDocuments(ctx, room.ID); n != 0 {
		t.Fatalf("documents should cascade, %d left", n)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
