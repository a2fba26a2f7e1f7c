package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docchat/internal/api"
	"docchat/internal/session"
	"docchat/internal/storage"
	"docchat/internal/tui"
	"docchat/internal/workspace"
)

// ErrNotLoggedIn is returned by headless commands run without a session.
var ErrNotLoggedIn = errors.New("not logged in: run `docchat login` first")

// Client is the wired client side: token store, session, API client and
// workspace service.
type Client struct {
	Config    *Config
	Store     *storage.Store
	Session   *session.Manager
	API       *api.Client
	Workspace *workspace.Service
	Logger    *slog.Logger
}

// OpenClient opens the token store and restores the saved session.
func OpenClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureDir(cfg.Data.DBPath); err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	manager := session.NewManager(session.NewSQLStore(store, cfg.Data.Profile), logger)
	client := api.New(cfg.API.URL, manager,
		api.WithTimeout(cfg.Timeout()),
		api.WithUserAgent("docchat/"+Version),
		api.WithLogger(logger),
		api.WithUnauthorizedHandler(func() {
			logger.Info("session expired, sign-in required")
		}),
	)
	manager.Restore(ctx)

	return &Client{
		Config:    cfg,
		Store:     store,
		Session:   manager,
		API:       client,
		Workspace: workspace.NewService(client, cfg.GuardLimits(), cfg.PollOptions(), logger),
		Logger:    logger,
	}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.Session.Dispose()
	return c.Store.Close()
}

// RunClient launches the TUI. Logs go to the configured file so they do not
// tear the screen.
func RunClient(ctx context.Context, cfg *Config) error {
	logger, closeLog, err := NewFileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := OpenClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("client starting", "api", cfg.API.URL, "version", Version)
	return tui.Run(ctx, tui.Deps{
		Session:   client.Session,
		Workspace: client.Workspace,
		ServerURL: cfg.API.URL,
		BrowseDir: cfg.Data.BrowseDir,
		Logger:    logger,
	})
}

// NewFileLogger opens the log file in append mode.
func NewFileLogger(cfg *Config) (*slog.Logger, func(), error) {
	if err := ensureDir(cfg.Log.File); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	return logger, func() { _ = f.Close() }, nil
}

// NewStderrLogger is used by headless commands and the server.
func NewStderrLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, "sqlite://") || strings.HasPrefix(path, "file:") || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	return nil
}
