package application

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

const replyPreviewLength = 60

// Model is the in-memory view of conversations and messages shared by the
// sync engine and the mutation queue. The map has its own lock; every change
// to a conversation or its messages happens under that conversation's lock.
type Model struct {
	mu    sync.RWMutex
	convs map[domain.ConversationID]*conversationState
	self  string
}

type conversationState struct {
	mu       sync.Mutex
	conv     domain.Conversation
	messages map[domain.MessageID]*domain.Message
	// remoteDeletes holds messages a merged record reported as deleted.
	remoteDeletes map[domain.MessageID]struct{}
}

func (s *conversationState) deletedRemotely(id domain.MessageID) bool {
	_, ok := s.remoteDeletes[id]
	return ok
}

// MessageView is a message with its reply reference resolved at read time.
type MessageView struct {
	domain.Message
	Reply ReplyPreview
}

type ReplyPreview struct {
	State  domain.ReplyState
	Sender string
	Body   string
}

func NewModel() *Model {
	return &Model{convs: make(map[domain.ConversationID]*conversationState)}
}

func (m *Model) SetSelf(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = userID
}

// Self is the id of the signed-in user, empty until identified.
func (m *Model) Self() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.self
}

// Upsert applies a conversation listing. Known conversations keep their
// unread, focus and stale state; conversations missing from the listing are
// marked inactive. It returns the ids whose metadata changed.
func (m *Model) Upsert(listed []domain.Conversation) []domain.ConversationID {
	seen := make(map[domain.ConversationID]struct{}, len(listed))
	var changed []domain.ConversationID

	for _, incoming := range listed {
		seen[incoming.ID] = struct{}{}
		if m.apply(incoming) {
			changed = append(changed, incoming.ID)
		}
	}

	for _, state := range m.states() {
		state.mu.Lock()
		if _, ok := seen[state.conv.ID]; !ok && state.conv.Active {
			state.conv.Active = false
			changed = append(changed, state.conv.ID)
		}
		state.mu.Unlock()
	}

	return changed
}

// Add applies a single conversation, such as a newly created chat, without
// touching the others. It reports whether the model changed.
func (m *Model) Add(conv domain.Conversation) bool {
	return m.apply(conv)
}

func (m *Model) apply(incoming domain.Conversation) bool {
	state, created := m.stateFor(incoming.ID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if created {
		state.conv = cloneConversation(incoming)
		state.conv.Active = true
		state.conv.Unread = 0
		state.conv.Stale = false
		state.conv.Focused = false
		return true
	}

	before := fingerprint(state.conv)
	state.conv.Kind = incoming.Kind
	state.conv.Topic = incoming.Topic
	state.conv.Members = slices.Clone(incoming.Members)
	if incoming.Preview != "" {
		state.conv.Preview = incoming.Preview
	}
	if incoming.LastActivity.After(state.conv.LastActivity) {
		state.conv.LastActivity = incoming.LastActivity
	}
	state.conv.Active = true
	return fingerprint(state.conv) != before
}

func fingerprint(c domain.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d|%t|", c.Kind, c.Topic, c.Preview, c.LastActivity.UnixNano(), c.Active)
	for _, member := range c.Members {
		b.WriteString(member.UserID)
		b.WriteByte(',')
		b.WriteString(member.DisplayName)
		b.WriteByte(';')
	}
	return b.String()
}

func (m *Model) stateFor(id domain.ConversationID) (*conversationState, bool) {
	m.mu.RLock()
	state, ok := m.convs[id]
	m.mu.RUnlock()
	if ok {
		return state, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.convs[id]; ok {
		return state, false
	}
	state = &conversationState{
		conv:     domain.Conversation{ID: id, Active: true},
		messages: make(map[domain.MessageID]*domain.Message),
	}
	m.convs[id] = state
	return state, true
}

func (m *Model) lookup(id domain.ConversationID) (*conversationState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.convs[id]
	return state, ok
}

func (m *Model) states() []*conversationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*conversationState, 0, len(m.convs))
	for _, state := range m.convs {
		out = append(out, state)
	}
	return out
}

// update runs fn under the conversation lock.
func (m *Model) update(id domain.ConversationID, fn func(*conversationState) error) error {
	state, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrConversationNotFound, id)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return fn(state)
}

func (m *Model) Conversation(id domain.ConversationID) (domain.Conversation, bool) {
	state, ok := m.lookup(id)
	if !ok {
		return domain.Conversation{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneConversation(state.conv), true
}

// Conversations returns every known conversation, most recent activity first.
func (m *Model) Conversations() []domain.Conversation {
	states := m.states()
	out := make([]domain.Conversation, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		out = append(out, cloneConversation(state.conv))
		state.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b domain.Conversation) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Messages returns the conversation's messages in (created, id) order with
// reply references resolved.
func (m *Model) Messages(id domain.ConversationID) ([]MessageView, error) {
	var out []MessageView
	err := m.update(id, func(state *conversationState) error {
		sorted := state.sorted()
		out = make([]MessageView, 0, len(sorted))
		for _, msg := range sorted {
			out = append(out, MessageView{Message: msg.Clone(), Reply: state.replyPreview(msg.ReplyTo)})
		}
		return nil
	})
	return out, err
}

func (m *Model) Message(id domain.ConversationID, msgID domain.MessageID) (domain.Message, bool) {
	var (
		out   domain.Message
		found bool
	)
	_ = m.update(id, func(state *conversationState) error {
		if msg, ok := state.messages[msgID]; ok {
			out, found = msg.Clone(), true
		}
		return nil
	})
	return out, found
}

// Focus marks id as the conversation the user is reading, clears its unread
// counter and unfocuses every other conversation.
func (m *Model) Focus(id domain.ConversationID) error {
	if _, ok := m.lookup(id); !ok {
		return fmt.Errorf("%w: %q", domain.ErrConversationNotFound, id)
	}
	for _, state := range m.states() {
		state.mu.Lock()
		focused := state.conv.ID == id
		state.conv.Focused = focused
		if focused {
			state.conv.Unread = 0
		}
		state.mu.Unlock()
	}
	return nil
}

func (m *Model) setStale(id domain.ConversationID, stale bool) bool {
	changed := false
	_ = m.update(id, func(state *conversationState) error {
		changed = state.conv.Stale != stale
		state.conv.Stale = stale
		return nil
	})
	return changed
}

// Restore seeds a conversation from a cached snapshot. Conversations already
// present are left alone.
func (m *Model) Restore(snapshot ports.ConversationSnapshot) bool {
	state, created := m.stateFor(snapshot.Conversation.ID)
	if !created {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.conv = cloneConversation(snapshot.Conversation)
	state.conv.Focused = false
	for _, msg := range snapshot.Messages {
		msg := msg.Clone()
		msg.ConversationID = state.conv.ID
		msg.Pending = domain.MutationNone
		state.messages[msg.ID] = &msg
	}
	return true
}

// Snapshot copies the confirmed state of one conversation for the cache.
func (m *Model) Snapshot(id domain.ConversationID) (ports.ConversationSnapshot, bool) {
	var (
		out   ports.ConversationSnapshot
		found bool
	)
	_ = m.update(id, func(state *conversationState) error {
		found = true
		out.Conversation = cloneConversation(state.conv)
		for _, msg := range state.sorted() {
			if msg.ID.IsLocal() {
				continue
			}
			out.Messages = append(out.Messages, msg.Clone())
		}
		return nil
	})
	return out, found
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Members = slices.Clone(c.Members)
	return c
}

func (s *conversationState) sorted() []domain.Message {
	out := make([]domain.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, *msg)
	}
	slices.SortFunc(out, func(a, b domain.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *conversationState) replyPreview(id domain.MessageID) ReplyPreview {
	if id == "" {
		return ReplyPreview{State: domain.ReplyNone}
	}
	parent, ok := s.messages[id]
	switch {
	case !ok:
		return ReplyPreview{State: domain.ReplyUnknown}
	case parent.Deleted:
		return ReplyPreview{State: domain.ReplyDeleted, Sender: parent.Sender.DisplayName}
	default:
		return ReplyPreview{
			State:  domain.ReplyResolved,
			Sender: parent.Sender.DisplayName,
			Body:   truncate(parent.Body, replyPreviewLength),
		}
	}
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
