package conversations

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	name     lipgloss.Style
	focused  lipgloss.Style
	detail   lipgloss.Style
	meta     lipgloss.Style
	unread   lipgloss.Style
	warning  lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
	sender   lipgloss.Style
	self     lipgloss.Style
	reply    lipgloss.Style
	deleted  lipgloss.Style
	pending  lipgloss.Style
	reaction lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		name:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		focused:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		unread:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
		sender:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250")),
		self:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		reply:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		deleted:  lipgloss.NewStyle().Faint(true).Italic(true),
		pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("221")),
		reaction: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}
