package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat/internal/api"
	"docchat/internal/storage"
)

func TestRestoreSettlesState(t *testing.T) {
	empty := NewManager(NewMemoryStore(api.Tokens{}), nil)
	if empty.State() != StatePending {
		t.Fatalf("new manager should be pending")
	}
	if got := empty.Restore(context.Background()); got != StateAnonymous {
		t.Fatalf("Restore = %s", got)
	}

	halfStored := NewManager(NewMemoryStore(api.Tokens{AccessToken: "a"}), nil)
	if got := halfStored.Restore(context.Background()); got != StateAnonymous {
		t.Fatalf("a lone access token is not a session, got %s", got)
	}

	full := NewManager(NewMemoryStore(api.Tokens{AccessToken: "a", RefreshToken: "r"}), nil)
	if got := full.Restore(context.Background()); got != StateAuthenticated {
		t.Fatalf("Restore = %s", got)
	}
	if full.AccessToken() != "a" || !full.Has() {
		t.Fatalf("tokens not loaded")
	}
}

func TestSignInSignOutNotifies(t *testing.T) {
	store := NewMemoryStore(api.Tokens{})
	m := NewManager(store, nil)
	m.Restore(context.Background())

	var seen []State
	m.Subscribe(func(s State) { seen = append(seen, s) })

	if err := m.SignIn(context.Background(), api.Tokens{AccessToken: "a"}); err == nil {
		t.Fatalf("expected error for incomplete pair")
	}
	if err := m.SignIn(context.Background(), api.Tokens{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if stored, _ := store.LoadTokens(context.Background()); stored.AccessToken != "a" {
		t.Fatalf("tokens not persisted")
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if stored, _ := store.LoadTokens(context.Background()); stored.Valid() {
		t.Fatalf("tokens not cleared")
	}
	if len(seen) != 2 || seen[0] != StateAuthenticated || seen[1] != StateAnonymous {
		t.Fatalf("unexpected notifications %v", seen)
	}

	m.Dispose()
	_ = m.SignIn(context.Background(), api.Tokens{AccessToken: "a", RefreshToken: "r"})
	if len(seen) != 2 {
		t.Fatalf("disposed manager kept notifying")
	}
}

func TestUnauthorizedResponseSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"expired"}`)
	}))
	defer srv.Close()

	db, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	store := NewSQLStore(db, srv.URL)
	if err := store.SaveTokens(context.Background(), api.Tokens{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}

	m := NewManager(store, nil)
	if m.Restore(context.Background()) != StateAuthenticated {
		t.Fatalf("expected restored session")
	}
	client := api.New(srv.URL, m)
	_, err = m.Check(context.Background(), client.Auth().Me)
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if m.State() != StateAnonymous || m.Has() {
		t.Fatalf("manager should be signed out, state %s", m.State())
	}
	stored, _ := store.LoadTokens(context.Background())
	if stored.AccessToken != "" || stored.RefreshToken != "" {
		t.Fatalf("both tokens must be cleared, got %+v", stored)
	}
}

func TestCheckCachesUser(t *testing.T) {
	m := NewManager(NewMemoryStore(api.Tokens{AccessToken: "a", RefreshToken: "r"}), nil)
	m.Restore(context.Background())
	user, err := m.Check(context.Background(), func(context.Context) (api.User, error) {
		return api.User{ID: "1", Name: "Ada", Email: "ada@example.com"}, nil
	})
	if err != nil || user.Name != "Ada" {
		t.Fatalf("Check: %+v %v", user, err)
	}
	if cached := m.User(); cached == nil || cached.Email != "ada@example.com" {
		t.Fatalf("user not cached: %+v", cached)
	}
}

func TestGuards(t *testing.T) {
	cases := []struct {
		state  State
		target Route
		want   Decision
	}{
		{StatePending, RouteDashboard, Decision{Route: RouteLoading}},
		{StatePending, RouteLogin, Decision{Route: RouteLoading}},
		{StateAnonymous, RouteDashboard, Decision{Route: RouteLogin, Redirect: true}},
		{StateAnonymous, RouteRoom, Decision{Route: RouteLogin, Redirect: true}},
		{StateAnonymous, RouteLogin, Decision{Route: RouteLogin}},
		{StateAuthenticated, RouteLogin, Decision{Route: RouteDashboard, Redirect: true}},
		{StateAuthenticated, RouteRoom, Decision{Route: RouteRoom}},
	}
	for _, tc := range cases {
		if got := Resolve(tc.state, tc.target); got != tc.want {
			t.Errorf("Resolve(%s, %d) = %+v, want %+v", tc.state, tc.target, got, tc.want)
		}
	}
}
