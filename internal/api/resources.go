package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type AuthService struct{ c *Client }

// Login exchanges credentials for a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (Tokens, error) {
	payload := map[string]string{"email": email, "password": password}
	return s.tokens(ctx, "/auth/login", payload)
}

// Register creates an account. Some backends answer with a token pair and
// some with the created user; in the latter case the returned Tokens are
// empty and the caller is expected to log in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (Tokens, error) {
	payload := map[string]string{"name": name, "email": email, "password": password}
	return s.tokens(ctx, "/auth/register", payload)
}

// Refresh trades a refresh token for a new pair. Nothing calls it on 401;
// the session ends instead.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return s.tokens(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
}

func (s *AuthService) tokens(ctx context.Context, path string, payload any) (Tokens, error) {
	buf, err := jsonBody(payload)
	if err != nil {
		return Tokens{}, err
	}
	var out Tokens
	req := request{method: http.MethodPost, path: path, body: buf, contentType: "application/json", public: true}
	if err := s.c.do(ctx, req, &out); err != nil {
		return Tokens{}, err
	}
	return out, nil
}

// Me returns the account behind the current token.
func (s *AuthService) Me(ctx context.Context) (User, error) {
	var out User
	err := s.c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

type RoomService struct{ c *Client }

func (s *RoomService) List(ctx context.Context) ([]Room, error) {
	out := []Room{}
	if err := s.c.doJSON(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RoomService) Get(ctx context.Context, id ID) (Room, error) {
	var out Room
	err := s.c.doJSON(ctx, http.MethodGet, "/rooms/"+escape(id), nil, &out)
	return out, err
}

func (s *RoomService) Create(ctx context.Context, in RoomInput) (Room, error) {
	var out Room
	err := s.c.doJSON(ctx, http.MethodPost, "/rooms", in, &out)
	return out, err
}

func (s *RoomService) Update(ctx context.Context, id ID, in RoomInput) (Room, error) {
	var out Room
	err := s.c.doJSON(ctx, http.MethodPut, "/rooms/"+escape(id), in, &out)
	return out, err
}

func (s *RoomService) Delete(ctx context.Context, id ID) error {
	return s.c.doJSON(ctx, http.MethodDelete, "/rooms/"+escape(id), nil, nil)
}

type DocumentService struct{ c *Client }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one file as multipart form field "file". The backend checks
// the part's Content-Type against its allowlist, so contentType must be the
// real type; empty means application/octet-stream.
func (s *DocumentService) Upload(ctx context.Context, roomID ID, filename, contentType string, content io.Reader) (UploadResult, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(filename))))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadResult{}, err
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	req := request{
		method:      http.MethodPost,
		path:        "/documents/upload/" + escape(roomID),
		body:        body,
		contentType: writer.FormDataContentType(),
	}
	if err := s.c.do(ctx, req, &out); err != nil {
		return UploadResult{}, err
	}
	if out.Filename == "" {
		out.Filename = filepath.Base(filename)
	}
	return out, nil
}

// UploadFile opens path and uploads it as contentType.
func (s *DocumentService) UploadFile(ctx context.Context, roomID ID, path, contentType string) (UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, err
	}
	defer f.Close()
	return s.Upload(ctx, roomID, path, contentType, f)
}

func (s *DocumentService) List(ctx context.Context, roomID ID) ([]Document, error) {
	out := []Document{}
	if err := s.c.doJSON(ctx, http.MethodGet, "/documents/room/"+escape(roomID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DocumentService) Delete(ctx context.Context, id ID) error {
	return s.c.doJSON(ctx, http.MethodDelete, "/documents/"+escape(id), nil, nil)
}

// Processed reports whether the document shows up as processed in the
// room's listing. A document missing from the list is an error.
func (s *DocumentService) Processed(ctx context.Context, roomID, docID ID) (bool, error) {
	docs, err := s.List(ctx, roomID)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.ID == docID {
			return d.Processed, nil
		}
	}
	return false, ErrDocumentGone
}

// ErrDocumentGone is returned by Processed when the document was deleted.
var ErrDocumentGone = errors.New("document no longer listed")

type ChatService struct{ c *Client }

func (s *ChatService) Ask(ctx context.Context, roomID ID, question string) (ChatAnswer, error) {
	var out ChatAnswer
	err := s.c.doJSON(ctx, http.MethodPost, "/chat/"+escape(roomID), map[string]string{"question": question}, &out)
	return out, err
}

func (s *ChatService) History(ctx context.Context, roomID ID) ([]Message, error) {
	out := []Message{}
	if err := s.c.doJSON(ctx, http.MethodGet, "/chat/history/"+escape(roomID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func escape(id ID) string {
	return url.PathEscape(string(id))
}
