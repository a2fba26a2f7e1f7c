package tui

import (
	"errors"
	"fmt"
	"net/mail"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/chat"
	"docchat/internal/guard"
	"docchat/internal/poll"
	"docchat/internal/session"
	"docchat/internal/workspace"
)

func (model *Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.height = typedMessage.Height
		model.resize()
		return model, nil

	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeRoom()
			return model, tea.Quit
		}
		switch model.screen {
		case screenLogin:
			return model.updateLogin(typedMessage)
		case screenDashboard:
			return model.updateDashboard(typedMessage)
		case screenRoom:
			return model.updateRoom(typedMessage)
		}
		return model, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(typedMessage)
		if model.room != nil && model.room.Thread().Busy() {
			model.syncTranscript()
		}
		return model, cmd

	case sessionMsg:
		return model, model.onSession(typedMessage.state)

	case authDoneMsg:
		model.busy = false
		if typedMessage.err != nil {
			model.errMsg = authErrorText(typedMessage.err)
			return model, nil
		}
		model.resetAuth()
		if model.screen != screenDashboard {
			return model, model.navigate(session.RouteDashboard)
		}
		return model, nil

	case userMsg:
		if typedMessage.err == nil {
			user := typedMessage.user
			model.user = &user
		}
		return model, nil

	case logoutMsg:
		model.busy = false
		model.dashboard = model.svc.Dashboard()
		model.selectedRoom = 0
		model.notice = "Signed out."
		if model.screen != screenLogin {
			return model, model.navigate(session.RouteLogin)
		}
		return model, nil

	case roomsLoadedMsg:
		model.roomsLoading = false
		if typedMessage.err != nil {
			model.errMsg = "Could not load rooms. " + api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.clampRoomSelection()
		return model, nil

	case roomCreatedMsg:
		model.busy = false
		if typedMessage.err != nil {
			model.errMsg = api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.dashMode = dashList
		model.resetCreateForm()
		model.selectedRoom = 0
		model.notice = fmt.Sprintf("Created %s %s.", typedMessage.room.Emoji, typedMessage.room.Name)
		return model, nil

	case roomDeletedMsg:
		model.busy = false
		model.dashMode = dashList
		if typedMessage.err != nil {
			model.errMsg = api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.notice = fmt.Sprintf("Deleted %s.", typedMessage.name)
		model.clampRoomSelection()
		return model, nil

	case roomOpenedMsg:
		model.busy = false
		if model.screen != screenRoom || model.room != typedMessage.room {
			// the user left before the load finished
			typedMessage.room.Close()
			return model, nil
		}
		if typedMessage.err != nil {
			model.roomLoadError = api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.roomLoadError = ""
		model.syncTranscript()
		return model, model.chatInput.Focus()

	case uploadDoneMsg:
		if typedMessage.room != model.room {
			typedMessage.room.Close()
			return model, nil
		}
		model.uploading = ""
		if typedMessage.err != nil {
			model.errMsg = "Upload failed: " + api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.notice = fmt.Sprintf("Uploaded %s. Processing…", typedMessage.res.Filename)
		return model, nil

	case docDeletedMsg:
		model.busy = false
		if typedMessage.err != nil {
			model.errMsg = api.ErrorMessage(typedMessage.err)
			return model, nil
		}
		model.notice = fmt.Sprintf("Removed %s.", typedMessage.name)
		model.clampDocSelection()
		return model, nil

	case docEventMsg:
		if model.room == nil || model.room.ID() != typedMessage.RoomID {
			return model, nil
		}
		switch {
		case typedMessage.Err == nil:
			model.notice = fmt.Sprintf("%s is ready.", typedMessage.Filename)
		case errors.Is(typedMessage.Err, api.ErrDocumentGone):
			model.notice = fmt.Sprintf("%s was removed.", typedMessage.Filename)
			model.clampDocSelection()
		case errors.Is(typedMessage.Err, poll.ErrTimeout):
			model.errMsg = fmt.Sprintf("%s is still processing. Reopen the room to check again.", typedMessage.Filename)
		default:
			model.errMsg = fmt.Sprintf("Could not confirm %s: %s", typedMessage.Filename, api.ErrorMessage(typedMessage.Err))
		}
		return model, nil

	case answerMsg:
		typedMessage.thread.Finish(typedMessage.answer, typedMessage.err)
		if model.room != nil && model.room.Thread() == typedMessage.thread {
			model.syncTranscript()
		}
		return model, nil
	}
	return model, nil
}

// onSession reacts to the session settling or changing underneath us.
func (model *Model) onSession(state session.State) tea.Cmd {
	switch state {
	case session.StateAuthenticated:
		if model.screen == screenLoading || model.screen == screenLogin {
			return model.navigate(session.RouteDashboard)
		}
	case session.StateAnonymous:
		if model.screen != screenLogin {
			if model.screen != screenLoading {
				model.notice = "Your session ended. Please log in again."
			}
			return model.navigate(session.RouteLogin)
		}
	}
	return nil
}

func (model *Model) updateLogin(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		return model, tea.Quit
	case tea.KeyCtrlR:
		if model.busy {
			return model, nil
		}
		if model.intent == authLogin {
			model.intent = authRegister
		} else {
			model.intent = authLogin
		}
		model.errMsg = ""
		return model, model.focusAuth(model.authFields()[0])
	case tea.KeyTab, tea.KeyDown:
		return model, model.focusAuth(model.nextAuthField(1))
	case tea.KeyShiftTab, tea.KeyUp:
		return model, model.focusAuth(model.nextAuthField(-1))
	case tea.KeyEnter:
		fields := model.authFields()
		if model.authFocus != fields[len(fields)-1] {
			return model, model.focusAuth(model.nextAuthField(1))
		}
		return model, model.submitAuth()
	}
	var cmd tea.Cmd
	model.authInputs[model.authFocus], cmd = model.authInputs[model.authFocus].Update(key)
	return model, cmd
}

func (model *Model) nextAuthField(delta int) int {
	fields := model.authFields()
	pos := 0
	for i, f := range fields {
		if f == model.authFocus {
			pos = i
		}
	}
	pos = (pos + delta + len(fields)) % len(fields)
	return fields[pos]
}

// submitAuth validates the form locally before any request goes out.
func (model *Model) submitAuth() tea.Cmd {
	if model.busy {
		return nil
	}
	name := trimmed(model.authInputs[fieldName].Value())
	email := trimmed(model.authInputs[fieldEmail].Value())
	password := model.authInputs[fieldPassword].Value()

	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		model.errMsg = "Enter a valid email address."
		return model.focusAuth(fieldEmail)
	}
	if model.intent == authRegister {
		if len([]rune(name)) < 2 {
			model.errMsg = "Name must be at least 2 characters."
			return model.focusAuth(fieldName)
		}
		if len(password) < 6 {
			model.errMsg = "Password must be at least 6 characters."
			return model.focusAuth(fieldPassword)
		}
	} else if password == "" {
		model.errMsg = "Enter your password."
		return model.focusAuth(fieldPassword)
	}
	model.errMsg = ""
	model.notice = ""
	model.busy = true
	return model.loginCmd(model.intent, name, email, password)
}

func (model *Model) resetAuth() {
	for i := range model.authInputs {
		model.authInputs[i].Reset()
		model.authInputs[i].Blur()
	}
	model.errMsg = ""
}

func authErrorText(err error) string {
	if errors.Is(err, api.ErrInvalidCredentials) {
		return "Incorrect email or password."
	}
	return api.ErrorMessage(err)
}

func (model *Model) updateDashboard(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch model.dashMode {
	case dashCreate:
		return model.updateCreateForm(key)
	case dashConfirmDelete:
		switch key.String() {
		case "y", "Y":
			rooms := model.dashboard.Rooms()
			if model.selectedRoom >= len(rooms) || model.busy {
				model.dashMode = dashList
				return model, nil
			}
			model.busy = true
			return model, model.deleteRoomCmd(rooms[model.selectedRoom])
		case "n", "N", "esc":
			model.dashMode = dashList
		}
		return model, nil
	}

	rooms := model.dashboard.Rooms()
	switch key.String() {
	case "q", "Q", "esc":
		return model, tea.Quit
	case "up", "k":
		if model.selectedRoom > 0 {
			model.selectedRoom--
		}
	case "down", "j":
		if model.selectedRoom < len(rooms)-1 {
			model.selectedRoom++
		}
	case "r", "R":
		if !model.roomsLoading {
			model.roomsLoading = true
			model.errMsg = ""
			return model, model.loadRoomsCmd()
		}
	case "n", "N":
		if err := model.limits().CheckRoomCreate(len(rooms)); err != nil {
			model.errMsg = api.ErrorMessage(err)
			return model, nil
		}
		model.errMsg = ""
		model.notice = ""
		model.dashMode = dashCreate
		model.resetCreateForm()
		return model, model.focusCreate(0)
	case "d", "D", "delete":
		if len(rooms) > 0 && !model.busy {
			model.dashMode = dashConfirmDelete
		}
	case "l", "L":
		if !model.busy {
			model.busy = true
			return model, model.logoutCmd()
		}
	case "enter":
		if len(rooms) == 0 || model.busy {
			return model, nil
		}
		return model, model.enterRoom(rooms[model.selectedRoom].ID)
	}
	return model, nil
}

func (model *Model) updateCreateForm(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.dashMode = dashList
		model.errMsg = ""
		return model, nil
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		return model, model.focusCreate(1 - model.createFocus)
	case tea.KeyCtrlLeft, tea.KeyCtrlP:
		model.emojiIndex = (model.emojiIndex - 1 + len(workspace.EmojiChoices)) % len(workspace.EmojiChoices)
		return model, nil
	case tea.KeyCtrlRight, tea.KeyCtrlN:
		model.emojiIndex = (model.emojiIndex + 1) % len(workspace.EmojiChoices)
		return model, nil
	case tea.KeyEnter:
		if model.busy {
			return model, nil
		}
		name := trimmed(model.createInputs[0].Value())
		if name == "" {
			model.errMsg = "Room name is required."
			return model, model.focusCreate(0)
		}
		model.errMsg = ""
		model.busy = true
		return model, model.createRoomCmd(name, trimmed(model.createInputs[1].Value()), workspace.EmojiChoices[model.emojiIndex])
	}
	var cmd tea.Cmd
	model.createInputs[model.createFocus], cmd = model.createInputs[model.createFocus].Update(key)
	return model, cmd
}

func (model *Model) focusCreate(index int) tea.Cmd {
	model.createFocus = index
	var cmd tea.Cmd
	for i := range model.createInputs {
		if i == index {
			cmd = model.createInputs[i].Focus()
		} else {
			model.createInputs[i].Blur()
		}
	}
	return cmd
}

func (model *Model) resetCreateForm() {
	for i := range model.createInputs {
		model.createInputs[i].Reset()
		model.createInputs[i].Blur()
	}
	model.createFocus = 0
	model.emojiIndex = 0
}

func (model *Model) clampRoomSelection() {
	n := len(model.dashboard.Rooms())
	if model.selectedRoom >= n {
		model.selectedRoom = n - 1
	}
	if model.selectedRoom < 0 {
		model.selectedRoom = 0
	}
}

func (model *Model) enterRoom(id api.ID) tea.Cmd {
	cmd := model.navigate(session.RouteRoom)
	if model.screen != screenRoom {
		return cmd
	}
	model.closeRoom()
	model.busy = true
	model.notice = ""
	model.roomLoadError = ""
	model.selectedDoc = 0
	room, load := model.openRoom(id)
	model.room = room
	return load
}

func (model *Model) updateRoom(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.room == nil {
		return model, nil
	}
	if model.roomLoadError != "" {
		if key.Type == tea.KeyEsc || key.Type == tea.KeyEnter {
			return model, model.navigate(session.RouteDashboard)
		}
		return model, nil
	}
	switch model.focus {
	case focusPicker:
		return model.updatePicker(key)
	case focusConfirmDocDelete:
		switch key.String() {
		case "y", "Y":
			docs := model.room.Documents()
			model.focus = focusDocs
			if model.selectedDoc < len(docs) && !model.busy {
				model.busy = true
				return model, model.deleteDocCmd(model.room, docs[model.selectedDoc])
			}
		case "n", "N", "esc":
			model.focus = focusDocs
		}
		return model, nil
	case focusDocs:
		docs := model.room.Documents()
		switch key.String() {
		case "esc", "tab":
			model.focus = focusChat
			return model, model.chatInput.Focus()
		case "up", "k":
			if model.selectedDoc > 0 {
				model.selectedDoc--
			}
		case "down", "j":
			if model.selectedDoc < len(docs)-1 {
				model.selectedDoc++
			}
		case "x", "d", "delete":
			if len(docs) > 0 && !model.busy {
				model.focus = focusConfirmDocDelete
			}
		case "u", "ctrl+u":
			return model, model.openPicker()
		}
		return model, nil
	}

	switch key.Type {
	case tea.KeyEsc:
		return model, model.navigate(session.RouteDashboard)
	case tea.KeyTab:
		model.focus = focusDocs
		model.chatInput.Blur()
		model.clampDocSelection()
		return model, nil
	case tea.KeyCtrlU:
		return model, model.openPicker()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		model.transcript, cmd = model.transcript.Update(key)
		return model, cmd
	case tea.KeyEnter:
		return model, model.submitQuestion()
	}
	var cmd tea.Cmd
	model.chatInput, cmd = model.chatInput.Update(key)
	return model, cmd
}

// submitQuestion shows the question and a placeholder right away, then asks.
func (model *Model) submitQuestion() tea.Cmd {
	if model.busy {
		return nil
	}
	thread := model.room.Thread()
	question, err := thread.Begin(model.chatInput.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion), errors.Is(err, chat.ErrBusy):
		return nil
	case err != nil:
		model.errMsg = err.Error()
		return nil
	}
	model.chatInput.Reset()
	model.errMsg = ""
	model.syncTranscript()
	return model.askCmd(thread, question)
}

func (model *Model) openPicker() tea.Cmd {
	if model.uploading != "" {
		model.errMsg = "An upload is already in progress."
		return nil
	}
	if err := model.limits().CheckDocCount(len(model.room.Documents())); err != nil {
		model.errMsg = api.ErrorMessage(err)
		return nil
	}
	dir := model.browseDir
	if model.picker != nil {
		dir = model.picker.dir
	}
	model.picker = newFilePicker(dir, guard.Extensions())
	model.focus = focusPicker
	model.errMsg = ""
	model.chatInput.Blur()
	return nil
}

func (model *Model) updatePicker(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		model.focus = focusChat
		return model, model.chatInput.Focus()
	case "up", "k":
		model.picker.move(-1)
	case "down", "j":
		model.picker.move(1)
	case "backspace", "h", "left":
		model.picker.open(model.picker.parent())
	case "enter":
		item, ok := model.picker.choose()
		if !ok {
			return model, nil
		}
		model.focus = focusChat
		model.uploading = item.Name
		model.errMsg = ""
		model.notice = ""
		return model, tea.Batch(model.uploadCmd(model.room, item.Path), model.chatInput.Focus())
	}
	return model, nil
}

func (model *Model) clampDocSelection() {
	if model.room == nil {
		model.selectedDoc = 0
		return
	}
	n := len(model.room.Documents())
	if model.selectedDoc >= n {
		model.selectedDoc = n - 1
	}
	if model.selectedDoc < 0 {
		model.selectedDoc = 0
	}
}

func (model *Model) resize() {
	width := model.width - 36
	if width < 30 {
		width = 30
	}
	height := model.height - 12
	if height < 5 {
		height = 5
	}
	model.transcript.Width = width
	model.transcript.Height = height
	model.chatInput.Width = width - 4
	model.syncTranscript()
}

func (model *Model) syncTranscript() {
	if model.room == nil {
		model.transcript.SetContent("")
		return
	}
	model.transcript.SetContent(model.renderTranscript())
	model.transcript.GotoBottom()
}
