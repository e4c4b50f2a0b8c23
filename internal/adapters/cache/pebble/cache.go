// Package pebble keeps conversation snapshots between runs so a restart can
// resume from stored cursors instead of a full baseline.
package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/cockroachdb/pebble"
)

const (
	schemaVersion = 1
	cacheDirMode  = 0o700
)

var (
	keyPrefix = []byte("conv:")
	// keyEnd sorts right after every key carrying keyPrefix.
	keyEnd = []byte("conv;")
)

type Cache struct {
	db *pebble.DB
}

var _ ports.SnapshotCache = (*Cache)(nil)

func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), cacheDirMode); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) Save(ctx context.Context, snapshot ports.ConversationSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(toSchema(snapshot))
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", snapshot.Conversation.ID, err)
	}
	if err := c.db.Set(snapshotKey(snapshot.Conversation.ID), payload, pebble.Sync); err != nil {
		return fmt.Errorf("write snapshot %q: %w", snapshot.Conversation.ID, err)
	}
	return nil
}

// Load returns every stored snapshot. Entries written by a newer schema are
// skipped.
func (c *Cache) Load(ctx context.Context) ([]ports.ConversationSnapshot, error) {
	it, err := c.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: keyEnd})
	if err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	defer it.Close()

	var out []ports.ConversationSnapshot
	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var entry snapshotSchema
		if err := json.Unmarshal(it.Value(), &entry); err != nil {
			return nil, fmt.Errorf("decode snapshot %q: %w", it.Key(), err)
		}
		if entry.Version > schemaVersion {
			continue
		}
		out = append(out, entry.snapshot())
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.DeleteRange(keyPrefix, keyEnd, pebble.Sync); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}

func snapshotKey(id domain.ConversationID) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

type snapshotSchema struct {
	Version      int               `json:"version"`
	Conversation conversationEntry `json:"conversation"`
	Messages     []messageEntry    `json:"messages"`
	DeltaToken   string            `json:"delta_token,omitempty"`
	PageToken    string            `json:"page_token,omitempty"`
}

type conversationEntry struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Topic        string          `json:"topic,omitempty"`
	Members      []domain.Member `json:"members,omitempty"`
	Preview      string          `json:"preview,omitempty"`
	Unread       int             `json:"unread"`
	LastActivity time.Time       `json:"last_activity"`
}

type messageEntry struct {
	ID         string            `json:"id"`
	SenderID   string            `json:"sender_id,omitempty"`
	SenderName string            `json:"sender_name,omitempty"`
	Body       string            `json:"body,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	EditedAt   time.Time         `json:"edited_at,omitzero"`
	ModifiedAt time.Time         `json:"modified_at,omitzero"`
	Deleted    bool              `json:"deleted,omitempty"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Reactions  map[string]string `json:"reactions,omitempty"`
}

// toSchema keeps confirmed state only. Unconfirmed sends are dropped and
// pending markers cleared since the queue does not survive a restart.
func toSchema(s ports.ConversationSnapshot) snapshotSchema {
	conv := s.Conversation
	out := snapshotSchema{
		Version: schemaVersion,
		Conversation: conversationEntry{
			ID:           string(conv.ID),
			Kind:         string(conv.Kind),
			Topic:        conv.Topic,
			Members:      conv.Members,
			Preview:      conv.Preview,
			Unread:       conv.Unread,
			LastActivity: conv.LastActivity,
		},
		DeltaToken: s.Cursor.DeltaToken,
		PageToken:  s.Cursor.PageToken,
	}

	for _, m := range s.Messages {
		if m.ID.IsLocal() {
			continue
		}
		entry := messageEntry{
			ID:         string(m.ID),
			SenderID:   m.Sender.ID,
			SenderName: m.Sender.DisplayName,
			Body:       m.Body,
			CreatedAt:  m.CreatedAt,
			EditedAt:   m.EditedAt,
			ModifiedAt: m.ModifiedAt,
			Deleted:    m.Deleted,
			ReplyTo:    string(m.ReplyTo),
		}
		if len(m.Reactions) > 0 {
			entry.Reactions = make(map[string]string, len(m.Reactions))
			for reactor, kind := range m.Reactions {
				entry.Reactions[reactor] = string(kind)
			}
		}
		out.Messages = append(out.Messages, entry)
	}
	return out
}

func (s snapshotSchema) snapshot() ports.ConversationSnapshot {
	out := ports.ConversationSnapshot{
		Conversation: domain.Conversation{
			ID:           domain.ConversationID(s.Conversation.ID),
			Kind:         domain.ConversationKind(s.Conversation.Kind),
			Topic:        s.Conversation.Topic,
			Members:      s.Conversation.Members,
			Preview:      s.Conversation.Preview,
			Unread:       s.Conversation.Unread,
			LastActivity: s.Conversation.LastActivity,
			Active:       true,
		},
		Cursor: domain.Cursor{DeltaToken: s.DeltaToken, PageToken: s.PageToken},
	}

	for _, e := range s.Messages {
		msg := domain.Message{
			ID:             domain.MessageID(e.ID),
			ConversationID: out.Conversation.ID,
			Sender:         domain.Sender{ID: e.SenderID, DisplayName: e.SenderName},
			Body:           e.Body,
			CreatedAt:      e.CreatedAt,
			EditedAt:       e.EditedAt,
			ModifiedAt:     e.ModifiedAt,
			Deleted:        e.Deleted,
			ReplyTo:        domain.MessageID(e.ReplyTo),
		}
		if len(e.Reactions) > 0 {
			msg.Reactions = make(map[string]domain.ReactionKind, len(e.Reactions))
			for reactor, kind := range e.Reactions {
				msg.Reactions[reactor] = domain.ReactionKind(kind)
			}
		}
		out.Messages = append(out.Messages, msg)
	}
	return out
}
