package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"docchat/internal/api"
	"docchat/internal/chat"
	"docchat/internal/workspace"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 2).MarginTop(1)
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	readyStyle         = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true).MarginTop(1)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	sidebarStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).Width(30)
	sidebarFocusStyle  = sidebarStyle.Copy().BorderForeground(lipgloss.Color("213"))
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	userLabelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	aiLabelStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("141"))
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Italic(true)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).MarginTop(1)
	selectedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	itemStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
)

func (model *Model) View() string {
	switch model.screen {
	case screenLogin:
		return model.renderLoginView()
	case screenDashboard:
		return model.renderDashboardView()
	case screenRoom:
		return model.renderRoomView()
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			appTitleStyle.Render("DocChat"),
			connectingStyle.Render(model.spinner.View()+" Restoring session…"),
		)
	}
}

func (model *Model) renderStatus(sections []string) []string {
	if model.notice != "" {
		sections = append(sections, noticeBoxStyle.Render(systemMessageStyle.Render(model.notice)))
	}
	if model.errMsg != "" {
		sections = append(sections, errorStyle.Render(model.errMsg))
	}
	return sections
}

func (model *Model) renderLoginView() string {
	title := "Log in"
	hint := "Enter log in • Tab next field • Ctrl+R create an account • Esc quit"
	if model.intent == authRegister {
		title = "Create an account"
		hint = "Enter sign up • Tab next field • Ctrl+R back to log in • Esc quit"
	}

	sections := []string{
		appTitleStyle.Render("DocChat"),
		subtitleStyle.Render("Chat with your documents from the terminal"),
	}

	var fields []string
	fields = append(fields, selectedStyle.Render(title))
	for _, idx := range model.authFields() {
		fields = append(fields, model.authInputs[idx].View())
	}
	sections = append(sections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, fields...)))

	if model.busy {
		sections = append(sections, connectingStyle.Render(model.spinner.View()+" Working…"))
	}
	sections = model.renderStatus(sections)
	sections = append(sections, menuHintStyle.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *Model) renderDashboardView() string {
	rooms := model.dashboard.Rooms()
	limits := model.limits()

	greeting := "Your rooms"
	if model.user != nil && model.user.Name != "" {
		greeting = fmt.Sprintf("Welcome, %s", model.user.Name)
	}
	header := headerStyle.Render(strings.Join([]string{"DocChat", greeting, model.serverURL}, dividerStyle))
	sections := []string{header}
	sections = append(sections, subtitleStyle.Render(fmt.Sprintf("Rooms %d/%d", len(rooms), limits.MaxRooms)))

	if model.roomsLoading {
		sections = append(sections, connectingStyle.Render(model.spinner.View()+" Loading rooms…"))
	}

	switch model.dashMode {
	case dashCreate:
		sections = append(sections, model.renderCreateForm())
	default:
		sections = append(sections, menuBoxStyle.Render(model.renderRoomList(rooms)))
	}

	if model.dashMode == dashConfirmDelete && model.selectedRoom < len(rooms) {
		room := rooms[model.selectedRoom]
		sections = append(sections, errorStyle.Render(fmt.Sprintf("Delete %s %s and all its documents and messages? y/n", room.Emoji, room.Name)))
	}
	if model.busy {
		sections = append(sections, connectingStyle.Render(model.spinner.View()+" Working…"))
	}
	sections = model.renderStatus(sections)

	hint := "↑/↓ select • Enter open • N new room • D delete • R refresh • L log out • Q quit"
	if model.dashMode == dashCreate {
		hint = "Enter create • Tab switch field • Ctrl+←/→ or Ctrl+P/N emoji • Esc cancel"
	} else if len(rooms) >= limits.MaxRooms && limits.MaxRooms > 0 {
		hint = "↑/↓ select • Enter open • D delete • R refresh • L log out • Q quit (room limit reached)"
	}
	sections = append(sections, menuHintStyle.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *Model) renderRoomList(rooms []api.Room) string {
	if len(rooms) == 0 {
		if model.roomsLoading {
			return dimStyle.Render("…")
		}
		return menuHintStyle.Render("No rooms yet. Press N to create your first room.")
	}
	lines := make([]string, 0, len(rooms))
	for idx, room := range rooms {
		line := fmt.Sprintf("%s %s  %s", room.Emoji, room.Name, dimStyle.Render(roomStats(room)))
		if idx == model.selectedRoom {
			lines = append(lines, selectedStyle.Render("➤ ")+line)
		} else {
			lines = append(lines, itemStyle.Render("  ")+line)
		}
		if room.Description != "" {
			lines = append(lines, dimStyle.Render("    "+room.Description))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func roomStats(room api.Room) string {
	stats := fmt.Sprintf("%d docs • %d messages", room.DocumentCount, room.MessageCount)
	if created, ok := api.ParseTime(room.CreatedAt); ok {
		stats += " • created " + humanize.Time(created)
	}
	return stats
}

func (model *Model) renderCreateForm() string {
	var emojis []string
	for idx, emoji := range workspace.EmojiChoices {
		if idx == model.emojiIndex {
			emojis = append(emojis, selectedStyle.Render("["+emoji+"]"))
		} else {
			emojis = append(emojis, " "+emoji+" ")
		}
	}
	lines := []string{
		selectedStyle.Render("New room"),
		model.createInputs[0].View(),
		model.createInputs[1].View(),
		"emoji> " + strings.Join(emojis, ""),
	}
	return menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *Model) renderRoomView() string {
	if model.room == nil {
		return ""
	}
	room := model.room.Room()
	title := "Loading room…"
	if room.Name != "" {
		title = room.Emoji + " " + room.Name
	}
	header := headerStyle.Render(strings.Join([]string{"DocChat", title}, dividerStyle))

	if model.roomLoadError != "" {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			errorStyle.Render(model.roomLoadError),
			menuHintStyle.Render("Enter or Esc to go back to your rooms"),
		)
	}
	if model.busy && room.Name == "" {
		return lipgloss.JoinVertical(lipgloss.Left, header, connectingStyle.Render(model.spinner.View()+" Loading room…"))
	}

	var main string
	if model.focus == focusPicker && model.picker != nil {
		main = model.renderPicker()
	} else {
		main = messageBoxStyle.Render(model.transcript.View())
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, model.renderSidebar(), main)

	sections := []string{header, body}
	if model.uploading != "" {
		sections = append(sections, connectingStyle.Render(fmt.Sprintf("%s Uploading %s…", model.spinner.View(), model.uploading)))
	}
	if model.focus == focusConfirmDocDelete {
		if docs := model.room.Documents(); model.selectedDoc < len(docs) {
			sections = append(sections, errorStyle.Render(fmt.Sprintf("Remove %s from this room? y/n", docs[model.selectedDoc].Filename)))
		}
	}
	sections = model.renderStatus(sections)
	sections = append(sections, inputBoxStyle.Render(model.chatInput.View()))

	hint := "Enter ask • Tab documents • Ctrl+U upload • PgUp/PgDn scroll • Esc back"
	switch model.focus {
	case focusDocs, focusConfirmDocDelete:
		hint = "↑/↓ select • X remove • U upload • Tab/Esc back to chat"
	case focusPicker:
		hint = "↑/↓ select • Enter open/upload • ← parent folder • Esc cancel"
	}
	sections = append(sections, menuHintStyle.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *Model) renderSidebar() string {
	docs := model.room.Documents()
	limits := model.limits()
	lines := []string{statusStyle.Render(fmt.Sprintf("Documents %d/%d", len(docs), limits.MaxDocsPerRoom))}
	if len(docs) == 0 {
		lines = append(lines, dimStyle.Render("No documents yet."), dimStyle.Render("Ctrl+U to upload a PDF or TXT."))
	}
	for idx, doc := range docs {
		badge := readyStyle.Render("✓")
		if !doc.Processed {
			badge = model.spinner.View()
		}
		name := doc.Filename
		if len([]rune(name)) > 22 {
			name = string([]rune(name)[:21]) + "…"
		}
		line := badge + " " + name
		if model.focus != focusChat && idx == model.selectedDoc {
			line = selectedStyle.Render("➤ ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	style := sidebarStyle
	if model.focus == focusDocs || model.focus == focusConfirmDocDelete {
		style = sidebarFocusStyle
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *Model) renderPicker() string {
	picker := model.picker
	lines := []string{selectedStyle.Render("Upload from " + picker.dir)}
	if picker.err != nil {
		lines = append(lines, errorStyle.Render(picker.err.Error()))
	}
	if len(picker.items) == 0 {
		lines = append(lines, dimStyle.Render("No PDF or TXT files here."))
	}
	start, end := visibleWindow(picker.cursor, len(picker.items), model.transcript.Height)
	for idx := start; idx < end; idx++ {
		item := picker.items[idx]
		label := item.Name
		if item.IsDir {
			label += "/"
		} else {
			label += "  " + dimStyle.Render(item.SizeLabel())
		}
		if idx == picker.cursor {
			lines = append(lines, selectedStyle.Render("➤ ")+label)
		} else {
			lines = append(lines, "  "+label)
		}
	}
	return messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func visibleWindow(cursor, total, height int) (int, int) {
	if height <= 0 || total <= height {
		return 0, total
	}
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	if start+height > total {
		start = total - height
	}
	return start, start + height
}

// renderTranscript draws the conversation for the viewport.
func (model *Model) renderTranscript() string {
	entries := model.room.Thread().Entries()
	if len(entries) == 0 {
		return systemMessageStyle.Render("No messages yet. Ask something about the documents in this room.")
	}
	width := model.transcript.Width - 2
	if width < 20 {
		width = 20
	}
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, model.renderEntry(entry, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (model *Model) renderEntry(entry chat.Entry, width int) string {
	stamp := ""
	if ts, ok := api.ParseTime(entry.Timestamp); ok {
		stamp = timestampStyle.Render(ts.Local().Format("15:04")) + " "
	}
	if entry.MessageType == api.MessageUser {
		return stamp + userLabelStyle.Render("You") + "\n" + messageBodyStyle.Width(width).Render(entry.Content)
	}
	label := stamp + aiLabelStyle.Render("Assistant")
	switch {
	case entry.Pending:
		return label + "\n" + connectingStyle.Copy().MarginTop(0).Render(model.spinner.View()+" Thinking…")
	case entry.Failed:
		return label + "\n" + errorStyle.Copy().MarginTop(0).Width(width).Render(entry.Content)
	}
	block := label + "\n" + messageBodyStyle.Width(width).Render(entry.Content)
	if len(entry.Sources) > 0 {
		names := make([]string, 0, len(entry.Sources))
		for _, src := range entry.Sources {
			names = append(names, src.String())
		}
		block += "\n" + sourceStyle.Width(width).Render("Sources: "+strings.Join(names, ", "))
	}
	return block
}
