package poll

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Tracker owns at most one running poll per key. Views call Close on
// teardown; after that Track is a no-op.
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	parent context.Context
	polls  map[string]*tracked
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

type tracked struct {
	id     uint64
	cancel context.CancelFunc
}

func NewTracker(parent context.Context, opts Options) *Tracker {
	if parent == nil {
		parent = context.Background()
	}
	return &Tracker{
		opts:   opts.withDefaults(),
		parent: parent,
		polls:  make(map[string]*tracked),
	}
}

// Track starts polling key, replacing any poll already running for it, and
// reports whether a poll was started. onDone gets nil on success or the
// ErrTimeout chain; it is not called once the poll's context is done.
func (t *Tracker) Track(key string, check Check, onDone func(error)) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if prev, ok := t.polls[key]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(t.parent)
	t.nextID++
	entry := &tracked{id: t.nextID, cancel: cancel}
	t.polls[key] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()
		err := Until(ctx, t.opts, check)

		t.mu.Lock()
		if cur, ok := t.polls[key]; ok && cur.id == entry.id {
			delete(t.polls, key)
		}
		t.mu.Unlock()

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return true
}

// Cancel stops the poll for key and reports whether one was running.
func (t *Tracker) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.polls[key]
	if !ok {
		return false
	}
	entry.cancel()
	delete(t.polls, key)
	return true
}

func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelAllLocked()
}

// Close cancels every poll and refuses new ones.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cancelAllLocked()
}

func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tracker) cancelAllLocked() {
	for key, entry := range t.polls {
		entry.cancel()
		delete(t.polls, key)
	}
}

// Active returns the keys currently being polled, sorted.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.polls))
	for key := range t.polls {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Wait blocks until every poll goroutine has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
