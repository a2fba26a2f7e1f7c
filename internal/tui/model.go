// Package tui is the terminal front end: a bubbletea program with a login
// screen, the room dashboard and a room view with documents and chat.
package tui

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/guard"
	"docchat/internal/session"
	"docchat/internal/workspace"
)

// Deps is everything the program talks to.
type Deps struct {
	Session   *session.Manager
	Workspace *workspace.Service
	ServerURL string
	BrowseDir string
	Logger    *slog.Logger
}

type screen int

const (
	screenLoading screen = iota
	screenLogin
	screenDashboard
	screenRoom
)

type authIntent int

const (
	authLogin authIntent = iota
	authRegister
)

type dashMode int

const (
	dashList dashMode = iota
	dashCreate
	dashConfirmDelete
)

type roomFocus int

const (
	focusChat roomFocus = iota
	focusDocs
	focusPicker
	focusConfirmDocDelete
)

// Model is the bubbletea model for the whole client.
type Model struct {
	ctx       context.Context
	session   *session.Manager
	svc       *workspace.Service
	dashboard *workspace.Dashboard
	room      *workspace.Room
	logger    *slog.Logger
	serverURL string
	browseDir string
	send      func(tea.Msg)

	screen screen
	user   *api.User
	busy   bool
	notice string
	errMsg string
	width  int
	height int

	intent     authIntent
	authInputs []textinput.Model
	authFocus  int

	dashMode      dashMode
	selectedRoom  int
	createInputs  []textinput.Model
	createFocus   int
	emojiIndex    int
	roomsLoading  bool
	roomLoadError string

	focus       roomFocus
	chatInput   textinput.Model
	transcript  viewport.Model
	spinner     spinner.Model
	picker      *filePicker
	selectedDoc int
	uploading   string
}

const (
	fieldName = iota
	fieldEmail
	fieldPassword
)

func NewModel(ctx context.Context, deps Deps) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = connectingStyle.Copy().MarginTop(0)

	model := &Model{
		ctx:        ctx,
		session:    deps.Session,
		svc:        deps.Workspace,
		dashboard:  deps.Workspace.Dashboard(),
		logger:     logger,
		serverURL:  deps.ServerURL,
		browseDir:  deps.BrowseDir,
		screen:     screenLoading,
		authInputs: newAuthInputs(),
		createInputs: []textinput.Model{
			newInput("Room name", "name> ", 255),
			newInput("Description (optional)", "desc> ", 500),
		},
		chatInput:  newInput("Ask a question about your documents…", "> ", 2000),
		transcript: viewport.New(80, 16),
		spinner:    spin,
	}
	return model
}

func newInput(placeholder, prompt string, limit int) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.Prompt = prompt
	input.CharLimit = limit
	return input
}

func newAuthInputs() []textinput.Model {
	name := newInput("Your name", "name> ", 100)
	email := newInput("you@example.com", "email> ", 255)
	password := newInput("Password", "password> ", 100)
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	return []textinput.Model{name, email, password}
}

// SetSender lets background work (polls, session changes) reach the program.
func (model *Model) SetSender(send func(tea.Msg)) {
	model.send = send
}

func (model *Model) Init() tea.Cmd {
	return tea.Batch(model.restoreCmd(), model.spinner.Tick)
}

func (model *Model) limits() guard.Limits {
	return model.svc.Limits()
}

func (model *Model) client() *api.Client {
	return model.svc.Client()
}

// navigate asks the session gate where target really leads and switches
// screens accordingly. Leaving a room always stops its polls.
func (model *Model) navigate(target session.Route) tea.Cmd {
	decision := session.Resolve(model.session.State(), target)
	if decision.Redirect {
		model.logger.Debug("route redirected", "target", target, "route", decision.Route)
	}
	if decision.Route != session.RouteRoom {
		model.closeRoom()
	}
	model.errMsg = ""
	switch decision.Route {
	case session.RouteLogin:
		model.screen = screenLogin
		model.user = nil
		model.busy = false
		model.intent = authLogin
		model.resetAuth()
		return model.focusAuth(fieldEmail)
	case session.RouteDashboard:
		model.screen = screenDashboard
		model.dashMode = dashList
		model.roomsLoading = true
		return tea.Batch(model.loadRoomsCmd(), model.checkUserCmd())
	case session.RouteRoom:
		model.screen = screenRoom
		return nil
	default:
		model.screen = screenLoading
		return nil
	}
}

func (model *Model) closeRoom() {
	if model.room == nil {
		return
	}
	model.room.Close()
	model.room = nil
	model.picker = nil
	model.uploading = ""
	model.focus = focusChat
	model.chatInput.Reset()
	model.chatInput.Blur()
}

func (model *Model) focusAuth(index int) tea.Cmd {
	if model.intent == authLogin && index == fieldName {
		index = fieldEmail
	}
	model.authFocus = index
	var cmd tea.Cmd
	for i := range model.authInputs {
		if i == index {
			cmd = model.authInputs[i].Focus()
		} else {
			model.authInputs[i].Blur()
		}
	}
	return cmd
}

// authFields is the ordered list of inputs visible for the current intent.
func (model *Model) authFields() []int {
	if model.intent == authRegister {
		return []int{fieldName, fieldEmail, fieldPassword}
	}
	return []int{fieldEmail, fieldPassword}
}
