package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"docchat/internal/api"
	"docchat/internal/guard"
	"docchat/internal/poll"
)

// Login stores a fresh token pair for the profile.
func (c *Client) Login(ctx context.Context, email, password string) error {
	tokens, err := c.API.Auth().Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	return c.Session.SignIn(ctx, tokens)
}

// Register creates the account and signs in with it.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	tokens, err := c.API.Auth().Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	if !tokens.Valid() {
		return c.Login(ctx, email, password)
	}
	return c.Session.SignIn(ctx, tokens)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Session.SignOut(ctx)
}

func (c *Client) requireSession() error {
	if !c.Session.Has() {
		return ErrNotLoggedIn
	}
	return nil
}

// ListRooms prints one line per room.
func (c *Client) ListRooms(ctx context.Context, w io.Writer) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	rooms, err := c.API.Rooms().List(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No rooms yet.")
		return nil
	}
	for _, room := range rooms {
		fmt.Fprintf(w, "%s\t%s %s\t%d docs\t%d messages\n", room.ID, room.Emoji, room.Name, room.DocumentCount, room.MessageCount)
	}
	return nil
}

// Upload checks the file locally, uploads it and, with wait, polls until the
// document is processed.
func (c *Client) Upload(ctx context.Context, roomID api.ID, path string, wait bool, w io.Writer) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	info, err := guard.Inspect(path)
	if err != nil {
		return err
	}
	docs, err := c.API.Documents().List(ctx, roomID)
	if err != nil {
		return err
	}
	if err := c.Workspace.Limits().CheckUpload(info, len(docs)); err != nil {
		return err
	}

	res, err := c.API.Documents().UploadFile(ctx, roomID, path, c.Workspace.Limits().ContentType(info))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Uploaded %s (%s) as document %s\n", res.Filename, humanize.IBytes(uint64(info.Size)), res.ID)
	if !wait || res.ID == "" {
		return nil
	}

	opts := c.Config.PollOptions()
	fmt.Fprintf(w, "Waiting for processing (up to %s)…\n", opts.Ceiling())
	err = poll.Until(ctx, opts, c.Workspace.ProcessedCheck(roomID, res.ID, nil))
	if errors.Is(err, api.ErrDocumentGone) {
		return fmt.Errorf("%s was deleted before processing finished", res.Filename)
	}
	if err != nil {
		return fmt.Errorf("wait for %s: %w", res.Filename, err)
	}
	fmt.Fprintf(w, "%s is ready.\n", res.Filename)
	return nil
}

// Ask prints the answer and its sources.
func (c *Client) Ask(ctx context.Context, roomID api.ID, question string, w io.Writer) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("question is empty")
	}
	answer, err := c.API.Chat().Ask(ctx, roomID, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, answer.Answer)
	if len(answer.Sources) > 0 {
		names := make([]string, 0, len(answer.Sources))
		for _, src := range answer.Sources {
			names = append(names, src.String())
		}
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(names, ", "))
	}
	return nil
}
