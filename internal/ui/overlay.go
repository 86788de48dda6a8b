// Package ui renders the chat room overlay in the terminal: one line per
// room, recency ordered, with unread badges and last-message previews.
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/medihub/medihub-go/internal/chat"
	"github.com/medihub/medihub-go/internal/domain"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	roomStyle    = lipgloss.NewStyle().PaddingLeft(1)
	unreadStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	previewStyle = lipgloss.NewStyle().Faint(true)
	timeStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
)

type rosterChangedMsg struct{}

type Model struct {
	roster *chat.Roster
	rooms  []domain.ChatRoom
	now    func() time.Time
}

func NewModel(roster *chat.Roster) Model {
	return Model{roster: roster, rooms: roster.Rooms(), now: time.Now}
}

func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.roster.Changed()
		return rosterChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case rosterChangedMsg:
		m.rooms = m.roster.Rooms()
		return m, m.waitForChange()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	out := titleStyle.Render("MediHub chat") + "\n"
	if len(m.rooms) == 0 {
		return out + previewStyle.Render(" no rooms") + "\n"
	}
	for _, room := range m.rooms {
		line := room.Name
		if room.UnreadCount > 0 {
			line += " " + unreadStyle.Render(fmt.Sprintf("(%d)", room.UnreadCount))
		}
		if room.LastMessage != "" {
			line += "  " + previewStyle.Render(truncate(room.LastMessage, 40))
		}
		if !room.LastMessageAt.IsZero() {
			line += "  " + timeStyle.Render(relativeTime(m.now(), room.LastMessageAt))
		}
		out += roomStyle.Render(line) + "\n"
	}
	out += previewStyle.Render(" q to quit") + "\n"
	return out
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func relativeTime(now, at time.Time) string {
	d := now.Sub(at)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return at.Format("01-02")
	}
}
