package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

// Chat delta tokens are lastModifiedDateTime watermarks. The filter window
// overlaps by this much so equal timestamps are not skipped; merges are
// idempotent so the overlap is harmless.
const watermarkOverlap = time.Second

func messagesPath(conv domain.ConversationRef) (string, error) {
	if conv.Kind == domain.ConversationChannel {
		teamID, channelID, err := splitChannelID(conv.ID)
		if err != nil {
			return "", err
		}
		return "/teams/" + url.PathEscape(teamID) + "/channels/" + url.PathEscape(channelID) + "/messages", nil
	}
	return "/me/chats/" + url.PathEscape(string(conv.ID)) + "/messages", nil
}

func messagePath(conv domain.ConversationRef, id domain.MessageID) (string, error) {
	base, err := messagesPath(conv)
	if err != nil {
		return "", err
	}
	return base + "/" + url.PathEscape(string(id)), nil
}

func (c *Client) Delta(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, token, link string) (ports.DeltaPage, error) {
	if conv.Kind == domain.ConversationChannel {
		return c.channelDelta(ctx, cred, conv, token, link)
	}
	return c.chatDelta(ctx, cred, conv, token, link)
}

func (c *Client) chatDelta(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, token, link string) (ports.DeltaPage, error) {
	base, err := messagesPath(conv)
	if err != nil {
		return ports.DeltaPage{}, err
	}

	var watermark time.Time
	if token != "" {
		watermark, err = time.Parse(time.RFC3339Nano, token)
		if err != nil {
			return ports.DeltaPage{}, fmt.Errorf("chat %q: %w: %v", conv.ID, domain.ErrCursorStale, err)
		}
	}

	baseline := token == "" && link == ""
	target := link
	if target == "" {
		q := url.Values{}
		q.Set("$top", strconv.Itoa(pageSize))
		if baseline {
			q.Set("$orderby", "createdDateTime desc")
		} else {
			q.Set("$orderby", "lastModifiedDateTime desc")
			q.Set("$filter", "lastModifiedDateTime gt "+watermark.Add(-watermarkOverlap).UTC().Format(time.RFC3339Nano))
		}
		target = base + "?" + q.Encode()
	}

	var page collection[chatMessage]
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &page}); err != nil {
		return ports.DeltaPage{}, fmt.Errorf("chat %q delta: %w", conv.ID, err)
	}

	out := ports.DeltaPage{Records: records(conv.ID, page.Value)}
	for _, rec := range out.Records {
		if rec.ModifiedAt.After(watermark) {
			watermark = rec.ModifiedAt
		}
	}
	if watermark.IsZero() {
		watermark = c.clock.Now().UTC().Add(-time.Minute)
	}
	out.DeltaToken = watermark.UTC().Format(time.RFC3339Nano)

	if baseline {
		out.HistoryToken = page.NextLink
	} else {
		out.NextLink = page.NextLink
	}
	return out, nil
}

func (c *Client) channelDelta(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, token, link string) (ports.DeltaPage, error) {
	target := link
	if target == "" {
		target = token
	}
	if target == "" {
		base, err := messagesPath(conv)
		if err != nil {
			return ports.DeltaPage{}, err
		}
		target = base + "/delta?$top=" + strconv.Itoa(pageSize)
	}

	var page collection[chatMessage]
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &page}); err != nil {
		return ports.DeltaPage{}, fmt.Errorf("channel %q delta: %w", conv.ID, err)
	}

	return ports.DeltaPage{
		Records:    records(conv.ID, page.Value),
		NextLink:   page.NextLink,
		DeltaToken: page.DeltaLink,
	}, nil
}

func (c *Client) History(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, pageToken string) (ports.HistoryPage, error) {
	target := pageToken
	if target == "" {
		base, err := messagesPath(conv)
		if err != nil {
			return ports.HistoryPage{}, err
		}
		q := url.Values{}
		q.Set("$top", strconv.Itoa(pageSize))
		if conv.Kind != domain.ConversationChannel {
			q.Set("$orderby", "createdDateTime desc")
		}
		target = base + "?" + q.Encode()
	}

	var page collection[chatMessage]
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &page}); err != nil {
		return ports.HistoryPage{}, fmt.Errorf("conversation %q history: %w", conv.ID, err)
	}

	return ports.HistoryPage{Records: records(conv.ID, page.Value), NextPage: page.NextLink}, nil
}

type messageBody struct {
	Body itemBody `json:"body"`
}

func textBody(body string) messageBody {
	return messageBody{Body: itemBody{ContentType: "text", Content: body}}
}

func (c *Client) CreateMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, body, idempotencyKey string) (domain.MessageRecord, error) {
	target, err := messagesPath(conv)
	if err != nil {
		return domain.MessageRecord{}, err
	}

	var created chatMessage
	err = c.doJSON(ctx, cred, request{
		method:   http.MethodPost,
		target:   target,
		body:     textBody(body),
		out:      &created,
		mutating: true,
		headers:  map[string]string{"client-request-id": idempotencyKey},
	})
	if err != nil {
		return domain.MessageRecord{}, fmt.Errorf("send message to %q: %w", conv.ID, err)
	}

	rec := created.record(conv.ID)
	rec.ClientKey = idempotencyKey
	return rec, nil
}

// ReplyToMessage posts to the reply thread of a channel message. Chats have
// no reply threads.
func (c *Client) ReplyToMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, parent domain.MessageID, body, idempotencyKey string) (domain.MessageRecord, error) {
	if conv.Kind != domain.ConversationChannel {
		return domain.MessageRecord{}, fmt.Errorf("reply in %q: %w", conv.ID, domain.ErrReplyUnsupported)
	}
	target, err := messagePath(conv, parent)
	if err != nil {
		return domain.MessageRecord{}, err
	}

	var created chatMessage
	err = c.doJSON(ctx, cred, request{
		method:   http.MethodPost,
		target:   target + "/replies",
		body:     textBody(body),
		out:      &created,
		mutating: true,
		headers:  map[string]string{"client-request-id": idempotencyKey},
	})
	if err != nil {
		return domain.MessageRecord{}, fmt.Errorf("reply to message %q: %w", parent, err)
	}

	rec := created.record(conv.ID)
	if rec.ReplyTo == "" {
		rec.ReplyTo = parent
	}
	rec.ClientKey = idempotencyKey
	return rec, nil
}

// EditMessage patches the body and reads the message back, since the update
// itself answers 204 without a representation.
func (c *Client) EditMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, body string) (domain.MessageRecord, error) {
	target, err := messagePath(conv, id)
	if err != nil {
		return domain.MessageRecord{}, err
	}

	err = c.doJSON(ctx, cred, request{method: http.MethodPatch, target: target, body: textBody(body), mutating: true})
	if err != nil {
		return domain.MessageRecord{}, fmt.Errorf("edit message %q: %w", id, err)
	}

	var confirmed chatMessage
	err = c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &confirmed, mutating: true})
	if err != nil {
		return domain.MessageRecord{}, fmt.Errorf("read edited message %q: %w", id, err)
	}
	return confirmed.record(conv.ID), nil
}

func (c *Client) SoftDeleteMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID) error {
	target, err := messagePath(conv, id)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, cred, request{method: http.MethodPost, target: target + "/softDelete", mutating: true})
	if err != nil {
		return fmt.Errorf("delete message %q: %w", id, err)
	}
	return nil
}

func (c *Client) SetReaction(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error {
	return c.reaction(ctx, cred, conv, id, kind, "setReaction")
}

func (c *Client) UnsetReaction(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error {
	return c.reaction(ctx, cred, conv, id, kind, "unsetReaction")
}

func (c *Client) reaction(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind, action string) error {
	target, err := messagePath(conv, id)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, cred, request{
		method:   http.MethodPost,
		target:   target + "/" + action,
		body:     map[string]string{"reactionType": string(kind)},
		mutating: true,
	})
	if err != nil {
		return fmt.Errorf("%s on message %q: %w", action, id, err)
	}
	return nil
}

func records(conv domain.ConversationID, messages []chatMessage) []domain.MessageRecord {
	out := make([]domain.MessageRecord, 0, len(messages))
	for _, m := range messages {
		if !m.isUserMessage() {
			continue
		}
		out = append(out, m.record(conv))
	}
	return out
}
