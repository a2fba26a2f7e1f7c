package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (f *fakeTokens) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated++
}

func TestUnauthorizedClearsTokens(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "abc"}
	redirected := 0
	client := New(srv.URL, tokens, WithUnauthorizedHandler(func() { redirected++ }))

	_, err := client.Rooms().List(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if tokens.invalidated != 1 || tokens.AccessToken() != "" {
		t.Fatalf("tokens not cleared: %+v", tokens)
	}
	if redirected != 1 {
		t.Fatalf("expected unauthorized handler to run once, ran %d", redirected)
	}

	_, _ = client.Rooms().List(context.Background())
	if len(headers) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(headers))
	}
	if headers[0] != "Bearer abc" {
		t.Fatalf("first request header = %q", headers[0])
	}
	if headers[1] != "" {
		t.Fatalf("expected no Authorization after 401, got %q", headers[1])
	}
}

func TestLoginUnauthorizedIsInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale"}
	redirected := false
	client := New(srv.URL, tokens, WithUnauthorizedHandler(func() { redirected = true }))

	_, err := client.Auth().Login(context.Background(), "a@b.co", "secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if redirected || tokens.invalidated != 0 {
		t.Fatalf("login failure must not expire the session")
	}
	if got := ErrorMessage(err); got != "Incorrect email or password" {
		t.Fatalf("message = %q", got)
	}
}

func TestLoginSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["email"] != "a@b.co" || body["password"] != "secret" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"access_token":"a1","refresh_token":"r1","token_type":"bearer"}`)
	}))
	defer srv.Close()

	tokens, err := New(srv.URL, nil).Auth().Login(context.Background(), "a@b.co", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !tokens.Valid() || tokens.AccessToken != "a1" || tokens.RefreshToken != "r1" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}

func TestRefreshPostsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/refresh" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "r1" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"access_token":"a2","refresh_token":"r2","token_type":"bearer"}`)
	}))
	defer srv.Close()

	tokens, err := New(srv.URL, nil).Auth().Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.AccessToken != "a2" || tokens.RefreshToken != "r2" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}

func TestErrorMessageOrder(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"rate limit plain text", 429, "Rate limit exceeded: 10 per 1 day", MsgDailyLimit},
		{"rate limit with detail", 429, `{"detail":"slow down"}`, MsgDailyLimit},
		{"too large beats detail", 413, `{"detail":"Dosya çok büyük"}`, MsgFileTooLarge},
		{"validation list", 422, `{"detail":[{"loc":["body","name"],"msg":"field required"}]}`, MsgInvalidInput},
		{"server detail", 400, `{"detail":"Maximum room limit reached"}`, "Maximum room limit reached"},
		{"server message", 400, `{"message":"bad thing"}`, "bad thing"},
		{"not found bare", 404, "", MsgNotFound},
		{"not found with detail", 404, `{"detail":"Room not found"}`, "Room not found"},
		{"server error html", 500, "<html>oops</html>", MsgServerError},
		{"bad gateway", 502, "", MsgUnexpectedErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			err := New(srv.URL, nil).Rooms().Delete(context.Background(), "1")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := ErrorMessage(err); got != tc.want {
				t.Fatalf("ErrorMessage = %q, want %q", got, tc.want)
			}
			if StatusCode(err) != tc.status {
				t.Fatalf("StatusCode = %d", StatusCode(err))
			}
		})
	}
}

func TestErrorMessageTransportAndLocal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Rooms().List(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if got := ErrorMessage(err); got != MsgUnreachable {
		t.Fatalf("ErrorMessage = %q", got)
	}
	if got := ErrorMessage(errors.New("boom")); got != MsgUnexpectedErr {
		t.Fatalf("ErrorMessage = %q", got)
	}
	if got := ErrorMessage(localErr{}); got != "local text" {
		t.Fatalf("ErrorMessage = %q", got)
	}
}

type localErr struct{}

func (localErr) Error() string       { return "local" }
func (localErr) UserMessage() string { return "local text" }

func TestEmptyAndNonJSONSuccessBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms/7":
			w.WriteHeader(http.StatusNoContent)
		case "/rooms":
			_, _ = io.WriteString(w, "ok")
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()
	client := New(srv.URL, nil)

	if err := client.Rooms().Delete(context.Background(), "7"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rooms, err := client.Rooms().List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no rooms, got %v", rooms)
	}
	if _, err := client.Auth().Me(context.Background()); err != nil {
		t.Fatalf("Me with empty body: %v", err)
	}
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/upload/3" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %s", r.Header.Get("Content-Type"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "hello notes" || header.Filename != "notes.txt" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		if got := header.Header.Get("Content-Type"); got != "text/plain" {
			t.Errorf("part content type = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":12,"filename":"notes.txt","file_size":11,"message":"Document uploaded successfully"}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL, nil).Documents().Upload(context.Background(), "3", "/tmp/notes.txt", "text/plain", strings.NewReader("hello notes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.ID != "12" || res.FileSize != 11 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUploadDefaultsPartType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		if header.Filename != `odd"name.pdf` {
			t.Errorf("filename = %q", header.Filename)
		}
		if got := header.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("part content type = %q", got)
		}
		_, _ = io.WriteString(w, `{"id":1}`)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, nil).Documents().Upload(context.Background(), "3", `odd"name.pdf`, "", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestProcessedLooksUpDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"filename":"a.pdf","processed":true,"created_at":"2025-01-02T03:04:05"},{"id":2,"filename":"b.txt","processed":false}]`)
	}))
	defer srv.Close()
	docs := New(srv.URL, nil).Documents()

	ok, err := docs.Processed(context.Background(), "1", "1")
	if err != nil || !ok {
		t.Fatalf("doc 1: %v %v", ok, err)
	}
	ok, err = docs.Processed(context.Background(), "1", "2")
	if err != nil || ok {
		t.Fatalf("doc 2: %v %v", ok, err)
	}
	if _, err := docs.Processed(context.Background(), "1", "9"); !errors.Is(err, ErrDocumentGone) {
		t.Fatalf("expected ErrDocumentGone, got %v", err)
	}
}

func TestDecodeBackendShapes(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"id":5,"filename":"a.pdf","processed":false,"created_at":"2025-01-02T03:04:05.123"}`), &doc); err != nil {
		t.Fatalf("document: %v", err)
	}
	if doc.ID != "5" || doc.UploadedAt == "" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, ok := ParseTime(doc.UploadedAt); !ok {
		t.Fatalf("ParseTime(%q) failed", doc.UploadedAt)
	}

	var msg Message
	raw := `{"id":"m1","message_type":"ai","content":"hi","sources":[{"document_id":1,"filename":"a.pdf","page_number":3},{"filename":"b.txt","page":1}],"created_at":"2025-01-02T03:04:05"}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.ID != "m1" || msg.MessageType != MessageAI || msg.Timestamp == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(msg.Sources) != 2 || msg.Sources[0].Page == nil || *msg.Sources[0].Page != 3 || *msg.Sources[1].Page != 1 {
		t.Fatalf("unexpected sources %+v", msg.Sources)
	}
	if got := msg.Sources[0].String(); got != "a.pdf (p. 3)" {
		t.Fatalf("source string = %q", got)
	}

	out, err := json.Marshal(struct {
		A ID `json:"a"`
		B ID `json:"b"`
	}{"42", "abc"})
	if err != nil {
		t.Fatalf("marshal ids: %v", err)
	}
	if string(out) != `{"a":42,"b":"abc"}` {
		t.Fatalf("ids marshalled as %s", out)
	}
}
