package conversations

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/application"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type RenderOptions struct {
	Now  time.Time
	Self string
	// Limit caps the number of rows; zero renders everything.
	Limit int
}

// RenderList renders the conversation list in model order.
func RenderList(convs []domain.Conversation, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return listView(convs, opts, s) })
}

// RenderMessages renders one conversation transcript, oldest first.
func RenderMessages(conv domain.Conversation, messages []application.MessageView, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return messagesView(conv, messages, opts, s) })
}

// RenderSession renders the token-free credential state.
func RenderSession(session domain.Session, opts RenderOptions) (string, error) {
	return run(func(s styles) string { return sessionView(session, opts, s) })
}

func listView(convs []domain.Conversation, opts RenderOptions, s styles) string {
	active := make([]domain.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.Active {
			active = append(active, c)
		}
	}
	if opts.Limit > 0 && len(active) > opts.Limit {
		active = active[:opts.Limit]
	}

	lines := []string{
		s.title.Render("Conversations"),
		s.header.Render(fmt.Sprintf("conversations: %d", len(active))),
	}
	if len(active) == 0 {
		lines = append(lines, s.empty.Render("No conversations."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, c := range active {
		lines = append(lines, s.section.Render(conversationBlock(c, opts, s)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func conversationBlock(c domain.Conversation, opts RenderOptions, s styles) string {
	nameStyle := s.name
	if c.Focused {
		nameStyle = s.focused
	}
	title := []string{nameStyle.Render(c.DisplayName(opts.Self))}
	if c.Unread > 0 {
		title = append(title, " ", s.unread.Render(fmt.Sprintf("(%d unread)", c.Unread)))
	}
	if c.Stale {
		title = append(title, " ", s.warning.Render("[stale]"))
	}

	meta := s.meta.Render(fmt.Sprintf("%s · %s · %s", c.Kind, c.ID, relative(c.LastActivity, opts.Now)))
	parts := []string{lipgloss.JoinHorizontal(lipgloss.Top, title...), meta}
	if preview := strings.TrimSpace(c.Preview); preview != "" {
		parts = append(parts, s.detail.Render(preview))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func messagesView(conv domain.Conversation, messages []application.MessageView, opts RenderOptions, s styles) string {
	header := fmt.Sprintf("messages: %d", len(messages))
	if conv.Stale {
		header += " " + s.warning.Render("[stale]")
	}
	lines := []string{
		s.title.Render(conv.DisplayName(opts.Self)),
		s.header.Render(header),
	}
	if len(messages) == 0 {
		lines = append(lines, s.empty.Render("No messages."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[len(messages)-opts.Limit:]
	}
	for _, m := range messages {
		lines = append(lines, s.section.Render(messageBlock(m, opts, s)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func messageBlock(m application.MessageView, opts RenderOptions, s styles) string {
	senderStyle := s.sender
	if m.Sender.ID != "" && m.Sender.ID == opts.Self {
		senderStyle = s.self
	}
	name := m.Sender.DisplayName
	if strings.TrimSpace(name) == "" {
		name = m.Sender.ID
	}

	head := []string{senderStyle.Render(name), " ", s.meta.Render(relative(m.CreatedAt, opts.Now))}
	if !m.EditedAt.IsZero() && !m.Deleted {
		head = append(head, " ", s.meta.Render("(edited)"))
	}
	if m.Pending != domain.MutationNone {
		head = append(head, " ", s.pending.Render(fmt.Sprintf("[%s pending]", m.Pending)))
	}
	head = append(head, " ", s.meta.Render(string(m.ID)))

	parts := []string{lipgloss.JoinHorizontal(lipgloss.Top, head...)}
	if reply := replyLine(m.Reply); reply != "" {
		parts = append(parts, s.reply.Render(reply))
	}
	if m.Deleted {
		parts = append(parts, s.deleted.Render("This message has been deleted."))
	} else {
		parts = append(parts, s.detail.Render(m.Body))
	}
	if reactions := reactionLine(m.Reactions); reactions != "" {
		parts = append(parts, s.reaction.Render(reactions))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func replyLine(r application.ReplyPreview) string {
	switch r.State {
	case domain.ReplyResolved:
		return fmt.Sprintf("> %s: %s", r.Sender, r.Body)
	case domain.ReplyDeleted:
		return "> deleted message"
	case domain.ReplyUnknown:
		return "> earlier message"
	default:
		return ""
	}
}

func reactionLine(reactions map[string]domain.ReactionKind) string {
	if len(reactions) == 0 {
		return ""
	}
	counts := make(map[domain.ReactionKind]int)
	for _, kind := range reactions {
		counts[kind]++
	}
	kinds := slices.Sorted(maps.Keys(counts))
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", kind, counts[kind]))
	}
	return strings.Join(parts, "  ")
}

func sessionView(session domain.Session, opts RenderOptions, s styles) string {
	state := s.name.Render(string(session.State))
	if session.State == domain.SessionExpired {
		state = s.warning.Render(string(session.State))
	}
	lines := []string{
		s.title.Render("Session"),
		lipgloss.JoinHorizontal(lipgloss.Top, s.header.Render("state: "), state),
	}
	if session.Flow != domain.FlowNone {
		lines = append(lines, s.detail.Render("flow: "+string(session.Flow)))
	}
	if !session.ExpiresAt.IsZero() {
		lines = append(lines, s.detail.Render("token expires "+relative(session.ExpiresAt, opts.Now)))
	}
	if len(session.Scopes) > 0 {
		lines = append(lines, s.meta.Render("scopes: "+strings.Join(session.Scopes, " ")))
	}
	if session.Fallback {
		lines = append(lines, s.warning.Render("credential stored in the file fallback"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func relative(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	if now.IsZero() {
		now = time.Now()
	}
	return humanize.RelTime(at, now, "ago", "from now")
}
