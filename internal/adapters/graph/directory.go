package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

const searchLimit = 8

type presence struct {
	ID           string `json:"id"`
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
}

type chatMemberBinding struct {
	ODataType string   `json:"@odata.type"`
	Roles     []string `json:"roles"`
	UserBind  string   `json:"user@odata.bind"`
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SearchUsers matches the start of display names and addresses.
func (c *Client) SearchUsers(ctx context.Context, cred *domain.Credential, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	lit := odataString(query)
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("startswith(displayName,%s) or startswith(mail,%s) or startswith(userPrincipalName,%s)", lit, lit, lit))
	q.Set("$top", fmt.Sprint(searchLimit))
	q.Set("$select", "id,displayName,mail,userPrincipalName")

	var found collection[graphUser]
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: "/users?" + q.Encode(), out: &found}); err != nil {
		return nil, fmt.Errorf("search users %q: %w", query, err)
	}

	out := make([]domain.User, 0, len(found.Value))
	for _, u := range found.Value {
		out = append(out, u.user())
	}
	return out, nil
}

func (c *Client) CreateChat(ctx context.Context, cred *domain.Credential, selfID, user string) (domain.Conversation, error) {
	if strings.TrimSpace(selfID) == "" || strings.TrimSpace(user) == "" {
		return domain.Conversation{}, errors.New("create chat: both members are required")
	}

	member := func(id string) chatMemberBinding {
		return chatMemberBinding{
			ODataType: "#microsoft.graph.aadUserConversationMember",
			Roles:     []string{"owner"},
			UserBind:  c.baseURL + "/users(" + odataString(id) + ")",
		}
	}
	body := map[string]any{
		"chatType": "oneOnOne",
		"members":  []chatMemberBinding{member(selfID), member(user)},
	}

	var created chat
	err := c.doJSON(ctx, cred, request{method: http.MethodPost, target: "/chats", body: body, out: &created, mutating: true})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("create chat with %q: %w", user, err)
	}

	// The create answer carries no members; read them back for a usable name.
	var expanded chat
	target := "/chats/" + url.PathEscape(created.ID) + "?$expand=members"
	if err := c.doJSON(ctx, cred, request{method: http.MethodGet, target: target, out: &expanded}); err != nil {
		return created.conversation(), nil
	}
	return expanded.conversation(), nil
}

func (c *Client) Presence(ctx context.Context, cred *domain.Credential, userIDs []string) ([]domain.Presence, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var found collection[presence]
	err := c.doJSON(ctx, cred, request{
		method: http.MethodPost,
		target: "/communications/getPresencesByUserId",
		body:   map[string][]string{"ids": userIDs},
		out:    &found,
	})
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}

	out := make([]domain.Presence, 0, len(found.Value))
	for _, p := range found.Value {
		out = append(out, domain.Presence{UserID: p.ID, Availability: p.Availability, Activity: p.Activity})
	}
	return out, nil
}

// SetPresence sets the preferred presence of the signed-in user. A zero
// expiry leaves the service default in place.
func (c *Client) SetPresence(ctx context.Context, cred *domain.Credential, availability domain.Availability, expiry time.Duration) error {
	body := map[string]string{
		"availability": string(availability),
		"activity":     availability.Activity(),
	}
	if expiry > 0 {
		body["expirationDuration"] = isoDuration(expiry)
	}

	err := c.doJSON(ctx, cred, request{
		method:   http.MethodPost,
		target:   "/me/presence/setUserPreferredPresence",
		body:     body,
		mutating: true,
	})
	if err != nil {
		return fmt.Errorf("set presence %s: %w", availability, err)
	}
	return nil
}

// isoDuration renders d as an ISO 8601 duration at second precision.
func isoDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	sec := int64(d % time.Minute / time.Second)

	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	if sec > 0 || (h == 0 && m == 0) {
		fmt.Fprintf(&b, "%dS", sec)
	}
	return b.String()
}
