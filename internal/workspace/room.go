package workspace

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"docchat/internal/api"
	"docchat/internal/chat"
	"docchat/internal/guard"
	"docchat/internal/poll"
)

// DocEvent reports the end of a processing poll. Err is nil when the document
// became processed, wraps poll.ErrTimeout when the poll gave up and is
// api.ErrDocumentGone when the document was deleted elsewhere.
type DocEvent struct {
	RoomID     api.ID
	DocumentID api.ID
	Filename   string
	Err        error
}

// Room is one open room: its metadata, documents, conversation and the
// processing polls started from it.
type Room struct {
	svc     *Service
	id      api.ID
	thread  *chat.Thread
	tracker *poll.Tracker
	notify  func(DocEvent)

	mu     sync.Mutex
	room   api.Room
	docs   []api.Document
	loaded bool
}

// OpenRoom prepares a controller. notify, if set, is called from poll
// goroutines.
func (s *Service) OpenRoom(ctx context.Context, id api.ID, notify func(DocEvent)) *Room {
	return &Room{
		svc:     s,
		id:      id,
		thread:  chat.NewThread(id),
		tracker: poll.NewTracker(ctx, s.poll),
		notify:  notify,
	}
}

func (r *Room) ID() api.ID { return r.id }

func (r *Room) Thread() *chat.Thread { return r.thread }

// Load fetches the room, its documents and its history concurrently. Each
// fetch fills its own field, so completion order does not matter.
func (r *Room) Load(ctx context.Context) error {
	var (
		room    api.Room
		docs    []api.Document
		history []api.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		room, err = r.svc.client.Rooms().Get(gctx, r.id)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = r.svc.client.Documents().List(gctx, r.id)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = r.svc.client.Chat().History(gctx, r.id)
		return err
	})
	if err := g.Wait(); err != nil {
		r.svc.logger.Warn("room load failed", "room", r.id, "error", err)
		return &LoadError{Err: err}
	}

	r.mu.Lock()
	r.room = room
	r.docs = docs
	r.loaded = true
	r.mu.Unlock()
	r.thread.Load(history)

	for _, d := range docs {
		if !d.Processed {
			r.track(d.ID, d.Filename)
		}
	}
	return nil
}

func (r *Room) Room() api.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

func (r *Room) Documents() []api.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]api.Document, len(r.docs))
	copy(out, r.docs)
	return out
}

// Processing lists the document ids still being polled.
func (r *Room) Processing() []string {
	return r.tracker.Active()
}

// Upload validates path locally, uploads it, refreshes the list and starts
// polling the new document. Local violations never reach the network.
func (r *Room) Upload(ctx context.Context, path string) (api.UploadResult, error) {
	info, err := guard.Inspect(path)
	if err != nil {
		return api.UploadResult{}, err
	}
	r.mu.Lock()
	count := len(r.docs)
	r.mu.Unlock()
	if err := r.svc.limits.CheckUpload(info, count); err != nil {
		return api.UploadResult{}, err
	}

	res, err := r.svc.client.Documents().UploadFile(ctx, r.id, path, r.svc.limits.ContentType(info))
	if err != nil {
		return api.UploadResult{}, err
	}
	r.svc.logger.Info("document uploaded", "room", r.id, "document", res.ID, "filename", res.Filename)
	if r.tracker.Closed() {
		// left the room while the upload was in flight
		return res, nil
	}
	if err := r.Refresh(ctx); err != nil {
		r.svc.logger.Warn("refresh after upload failed", "error", err)
	}
	if res.ID != "" {
		r.track(res.ID, res.Filename)
	}
	return res, nil
}

// Refresh reloads the document list.
func (r *Room) Refresh(ctx context.Context) error {
	docs, err := r.svc.client.Documents().List(ctx, r.id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.docs = docs
	r.mu.Unlock()
	return nil
}

func (r *Room) DeleteDocument(ctx context.Context, id api.ID) error {
	if err := r.svc.client.Documents().Delete(ctx, id); err != nil {
		return err
	}
	r.tracker.Cancel(string(id))
	r.mu.Lock()
	kept := r.docs[:0]
	for _, d := range r.docs {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	r.docs = kept
	r.mu.Unlock()
	return nil
}

// Ask sends a question through the room's thread.
func (r *Room) Ask(ctx context.Context, question string) error {
	return r.thread.Send(ctx, r.svc.client.Chat(), question)
}

// Close cancels every outstanding poll and stops new ones from starting,
// including one for an upload still in flight. Safe to call twice.
func (r *Room) Close() {
	r.tracker.Close()
}

// Wait blocks until poll goroutines have exited. Used by tests and shutdown.
func (r *Room) Wait() {
	r.tracker.Wait()
}

func (r *Room) track(docID api.ID, filename string) {
	// The whole list is fetched so sibling documents refresh too.
	check := r.svc.ProcessedCheck(r.id, docID, func(docs []api.Document) {
		r.mu.Lock()
		r.docs = docs
		r.mu.Unlock()
	})
	r.tracker.Track(string(docID), check, func(err error) {
		if err != nil {
			r.svc.logger.Warn("document processing not confirmed", "document", docID, "error", err)
		}
		if r.notify != nil {
			r.notify(DocEvent{RoomID: r.id, DocumentID: docID, Filename: filename, Err: err})
		}
	})
}
