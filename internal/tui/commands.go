package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/chat"
	"docchat/internal/session"
	"docchat/internal/workspace"
)

// messages produced by the commands below or sent from background work
type (
	sessionMsg struct{ state session.State }
	authDoneMsg struct{ err error }
	userMsg     struct {
		user api.User
		err  error
	}
	roomsLoadedMsg struct{ err error }
	roomCreatedMsg struct {
		room api.Room
		err  error
	}
	roomDeletedMsg struct {
		name string
		err  error
	}
	roomOpenedMsg struct {
		room *workspace.Room
		err  error
	}
	uploadDoneMsg struct {
		room *workspace.Room
		res  api.UploadResult
		err  error
	}
	docDeletedMsg struct {
		name string
		err  error
	}
	answerMsg struct {
		thread *chat.Thread
		answer api.ChatAnswer
		err    error
	}
	docEventMsg workspace.DocEvent
	logoutMsg   struct{}
)

func (model *Model) restoreCmd() tea.Cmd {
	return func() tea.Msg {
		return sessionMsg{state: model.session.Restore(model.ctx)}
	}
}

// loginCmd signs in and stores the pair. Registration returns the new user
// rather than tokens, so it is followed by a login.
func (model *Model) loginCmd(intent authIntent, name, email, password string) tea.Cmd {
	auth := model.client().Auth()
	return func() tea.Msg {
		ctx := model.ctx
		var (
			tokens api.Tokens
			err    error
		)
		if intent == authRegister {
			tokens, err = auth.Register(ctx, name, email, password)
			if err == nil && !tokens.Valid() {
				tokens, err = auth.Login(ctx, email, password)
			}
		} else {
			tokens, err = auth.Login(ctx, email, password)
		}
		if err != nil {
			return authDoneMsg{err: err}
		}
		return authDoneMsg{err: model.session.SignIn(ctx, tokens)}
	}
}

func (model *Model) checkUserCmd() tea.Cmd {
	me := model.client().Auth().Me
	return func() tea.Msg {
		user, err := model.session.Check(model.ctx, me)
		return userMsg{user: user, err: err}
	}
}

func (model *Model) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		if err := model.session.SignOut(model.ctx); err != nil {
			model.logger.Warn("sign out", "error", err)
		}
		return logoutMsg{}
	}
}

func (model *Model) loadRoomsCmd() tea.Cmd {
	dashboard := model.dashboard
	return func() tea.Msg {
		_, err := dashboard.Load(model.ctx)
		return roomsLoadedMsg{err: err}
	}
}

func (model *Model) createRoomCmd(name, description, emoji string) tea.Cmd {
	dashboard := model.dashboard
	return func() tea.Msg {
		room, err := dashboard.Create(model.ctx, name, description, emoji)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (model *Model) deleteRoomCmd(room api.Room) tea.Cmd {
	dashboard := model.dashboard
	return func() tea.Msg {
		return roomDeletedMsg{name: room.Name, err: dashboard.Delete(model.ctx, room.ID)}
	}
}

// openRoom builds the room controller and a command that loads it. Poll
// results are forwarded to the program as docEventMsg.
func (model *Model) openRoom(id api.ID) (*workspace.Room, tea.Cmd) {
	send := model.send
	room := model.svc.OpenRoom(model.ctx, id, func(ev workspace.DocEvent) {
		if send != nil {
			send(docEventMsg(ev))
		}
	})
	return room, func() tea.Msg {
		return roomOpenedMsg{room: room, err: room.Load(model.ctx)}
	}
}

func (model *Model) uploadCmd(room *workspace.Room, path string) tea.Cmd {
	return func() tea.Msg {
		res, err := room.Upload(model.ctx, path)
		return uploadDoneMsg{room: room, res: res, err: err}
	}
}

func (model *Model) deleteDocCmd(room *workspace.Room, doc api.Document) tea.Cmd {
	return func() tea.Msg {
		return docDeletedMsg{name: doc.Filename, err: room.DeleteDocument(model.ctx, doc.ID)}
	}
}

// askCmd expects Begin to have already placed the question and placeholder.
func (model *Model) askCmd(thread *chat.Thread, question string) tea.Cmd {
	sender := model.client().Chat()
	return func() tea.Msg {
		answer, err := sender.Ask(model.ctx, thread.RoomID(), question)
		return answerMsg{thread: thread, answer: answer, err: err}
	}
}

// subscribeSession forwards session changes, including the sign out caused
// by a 401, into the program.
func subscribeSession(manager *session.Manager, send func(tea.Msg)) {
	manager.Subscribe(func(state session.State) {
		send(sessionMsg{state: state})
	})
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
