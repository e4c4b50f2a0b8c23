package application

import (
	"maps"

	"github.com/bnema/terms-cli/internal/domain"
)

type mergeStats struct {
	Inserted int
	Updated  int
	Unread   int
}

func (s mergeStats) Changed() bool {
	return s.Inserted > 0 || s.Updated > 0
}

// applyRecords merges a validated batch. Callers hold the conversation lock.
func (s *conversationState) applyRecords(records []domain.MessageRecord, countUnread bool, self string) mergeStats {
	var stats mergeStats
	for _, rec := range records {
		inserted, changed, unread := s.merge(rec, countUnread, self)
		switch {
		case inserted:
			stats.Inserted++
		case changed:
			stats.Updated++
		}
		if unread {
			stats.Unread++
		}
	}
	return stats
}

// merge applies one record. Re-applying a record is a no-op: bodies only move
// forward by edit time, deletion is sticky and reactions are only taken from
// records newer than the local copy.
func (s *conversationState) merge(rec domain.MessageRecord, countUnread bool, self string) (inserted, changed, unread bool) {
	if rec.Deleted {
		if s.remoteDeletes == nil {
			s.remoteDeletes = make(map[domain.MessageID]struct{})
		}
		s.remoteDeletes[rec.ID] = struct{}{}
	}

	local, ok := s.messages[rec.ID]
	if !ok {
		if rec.ClientKey != "" {
			s.dropLocalEcho(rec.ClientKey)
		}
		msg := rec.ToMessage(s.conv.ID)
		s.messages[msg.ID] = &msg
		if countUnread && !msg.Deleted && msg.Sender.ID != self && !s.conv.Focused {
			s.conv.Unread++
			unread = true
		}
		s.touch(msg)
		return true, true, unread
	}

	if local.Sender.ID == "" && rec.Sender.ID != "" {
		local.Sender = rec.Sender
		changed = true
	}
	if local.ReplyTo == "" && rec.ReplyTo != "" {
		local.ReplyTo = rec.ReplyTo
		changed = true
	}

	switch {
	case rec.Deleted && !local.Deleted:
		local.Deleted = true
		local.Body = ""
		changed = true
	case !rec.Deleted && !local.Deleted && rec.EditedAt.After(local.EditedAt):
		local.Body = rec.Body
		local.EditedAt = rec.EditedAt
		changed = true
	}

	fresher := local.ModifiedAt.IsZero() || rec.ModifiedAt.After(local.ModifiedAt)
	if rec.HasReactions && fresher && mergeReactions(local, rec.Reactions, self) {
		changed = true
	}
	if rec.ModifiedAt.After(local.ModifiedAt) {
		local.ModifiedAt = rec.ModifiedAt
	}

	return false, changed, false
}

// mergeReactions unions the incoming reactions into the local set. The
// incoming state decides only for the reactors it names; an empty kind
// withdraws that reactor's reaction. The signed-in user's own reaction is
// left alone while a reaction mutation for it is unconfirmed.
func mergeReactions(local *domain.Message, updates []domain.ReactionUpdate, self string) bool {
	selfPending := local.Pending == domain.MutationReact || local.Pending == domain.MutationUnreact
	next := maps.Clone(local.Reactions)
	if next == nil {
		next = make(map[string]domain.ReactionKind, len(updates))
	}
	for _, u := range updates {
		if selfPending && u.Reactor == self {
			continue
		}
		if u.Kind == "" {
			delete(next, u.Reactor)
			continue
		}
		next[u.Reactor] = u.Kind
	}

	if len(next) == 0 {
		next = nil
	}
	if maps.Equal(local.Reactions, next) {
		return false
	}
	local.Reactions = next
	return true
}

func (s *conversationState) touch(msg domain.Message) {
	if !msg.CreatedAt.After(s.conv.LastActivity) {
		return
	}
	s.conv.LastActivity = msg.CreatedAt
	if !msg.Deleted {
		s.conv.Preview = msg.Body
	}
}

// dropLocalEcho removes the optimistic copy of a send once the server
// version of it shows up.
func (s *conversationState) dropLocalEcho(clientKey string) {
	for id, msg := range s.messages {
		if id.IsLocal() && msg.ClientKey == clientKey {
			delete(s.messages, id)
		}
	}
}

// recomputeActivity rebuilds the preview after a message was removed.
func (s *conversationState) recomputeActivity() {
	var latest *domain.Message
	for _, msg := range s.messages {
		if msg.Deleted {
			continue
		}
		if latest == nil || latest.Less(*msg) {
			latest = msg
		}
	}
	if latest == nil {
		s.conv.Preview = ""
		return
	}
	s.conv.LastActivity = latest.CreatedAt
	s.conv.Preview = latest.Body
}
