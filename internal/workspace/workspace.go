// Package workspace holds the screen logic for the dashboard and a single
// room, independent of how they are drawn.
package workspace

import (
	"context"
	"log/slog"

	"docchat/internal/api"
	"docchat/internal/guard"
	"docchat/internal/poll"
)

// Service bundles what both controllers need.
type Service struct {
	client *api.Client
	limits guard.Limits
	poll   poll.Options
	logger *slog.Logger
}

func NewService(client *api.Client, limits guard.Limits, pollOpts poll.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, limits: limits, poll: pollOpts, logger: logger}
}

func (s *Service) Limits() guard.Limits { return s.limits }

func (s *Service) Client() *api.Client { return s.client }

// LoadError wraps a failed room load with the message the room screen shows.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "load room: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) UserMessage() string {
	if api.StatusCode(e.Err) == 404 {
		return "Room not found"
	}
	return "Failed to load room data."
}

// ProcessedCheck polls the room's document list until docID reports
// processed. A document missing from the list ends the poll with
// api.ErrDocumentGone. onList, if set, receives every fetched list.
func (s *Service) ProcessedCheck(roomID, docID api.ID, onList func([]api.Document)) poll.Check {
	return func(ctx context.Context) (bool, error) {
		docs, err := s.client.Documents().List(ctx, roomID)
		if err != nil {
			return false, err
		}
		if onList != nil {
			onList(docs)
		}
		for _, d := range docs {
			if d.ID == docID {
				return d.Processed, nil
			}
		}
		return false, poll.Stop(api.ErrDocumentGone)
	}
}
