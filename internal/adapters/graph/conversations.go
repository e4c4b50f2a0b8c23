package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bnema/terms-cli/internal/domain"
)

const channelSeparator = "/"

// ChannelConversationID addresses a team channel as a single conversation.
func ChannelConversationID(teamID, channelID string) domain.ConversationID {
	return domain.ConversationID(teamID + channelSeparator + channelID)
}

func splitChannelID(id domain.ConversationID) (string, string, error) {
	teamID, channelID, ok := strings.Cut(string(id), channelSeparator)
	if !ok || teamID == "" || channelID == "" {
		return "", "", fmt.Errorf("%w: %q is not a channel id", domain.ErrConversationNotFound, id)
	}
	return teamID, channelID, nil
}

func (c *Client) Me(ctx context.Context, cred *domain.Credential) (domain.User, error) {
	var me graphUser
	err := c.doJSON(ctx, cred, request{
		method: http.MethodGet,
		target: "/me?$select=id,displayName,mail,userPrincipalName",
		out:    &me,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("get me: %w", err)
	}

	return me.user(), nil
}

// ListConversations returns chats followed by the channels of joined teams.
// Accounts without team access still get their chats.
func (c *Client) ListConversations(ctx context.Context, cred *domain.Credential) ([]domain.Conversation, error) {
	q := url.Values{}
	q.Set("$expand", "members,lastMessagePreview")
	q.Set("$orderby", "lastMessagePreview/createdDateTime desc")
	q.Set("$top", "50")

	var out []domain.Conversation
	target := "/me/chats?" + q.Encode()
	for page := 0; target != "" && page < maxListPages; page++ {
		var chats collection[chat]
		if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &chats}); err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		for _, ch := range chats.Value {
			out = append(out, ch.conversation())
		}
		target = chats.NextLink
	}

	channels, err := c.listChannels(ctx, cred)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusForbidden {
			return out, nil
		}
		return nil, err
	}
	return append(out, channels...), nil
}

func (c *Client) listChannels(ctx context.Context, cred *domain.Credential) ([]domain.Conversation, error) {
	var teams collection[team]
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: "/me/joinedTeams", out: &teams}); err != nil {
		return nil, fmt.Errorf("list joined teams: %w", err)
	}

	var out []domain.Conversation
	for _, t := range teams.Value {
		var channels collection[channel]
		target := "/teams/" + url.PathEscape(t.ID) + "/channels"
		if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &channels}); err != nil {
			return nil, fmt.Errorf("list channels of team %q: %w", t.ID, err)
		}
		for _, ch := range channels.Value {
			out = append(out, domain.Conversation{
				ID:     ChannelConversationID(t.ID, ch.ID),
				Kind:   domain.ConversationChannel,
				Topic:  t.DisplayName + " / " + ch.DisplayName,
				Active: true,
			})
		}
	}
	return out, nil
}

func (c *Client) MarkRead(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, userID string) error {
	if conv.Kind == domain.ConversationChannel {
		return nil
	}

	body := map[string]any{
		"user": map[string]any{"id": userID, "tenantId": nil},
	}
	err := c.doJSON(ctx, cred, request{
		method:   http.MethodPost,
		target:   "/me/chats/" + url.PathEscape(string(conv.ID)) + "/markChatReadForUser",
		body:     body,
		mutating: true,
	})
	if err != nil {
		return fmt.Errorf("mark chat %q read: %w", conv.ID, err)
	}
	return nil
}
