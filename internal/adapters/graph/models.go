package graph

import (
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

type collection[T any] struct {
	Value     []T    `json:"value"`
	NextLink  string `json:"@odata.nextLink"`
	DeltaLink string `json:"@odata.deltaLink"`
}

type graphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (u graphUser) user() domain.User {
	mail := u.Mail
	if mail == "" {
		mail = u.UserPrincipalName
	}
	return domain.User{ID: u.ID, DisplayName: u.DisplayName, Mail: mail}
}

type chatMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type messagePreview struct {
	CreatedDateTime *time.Time `json:"createdDateTime"`
	Body            itemBody   `json:"body"`
}

type chat struct {
	ID                  string          `json:"id"`
	Topic               string          `json:"topic"`
	ChatType            string          `json:"chatType"`
	LastUpdatedDateTime *time.Time      `json:"lastUpdatedDateTime"`
	Members             []chatMember    `json:"members"`
	LastMessagePreview  *messagePreview `json:"lastMessagePreview"`
}

type team struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type channel struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type identitySet struct {
	User        *identity `json:"user"`
	Application *identity `json:"application"`
}

type reaction struct {
	ReactionType string       `json:"reactionType"`
	User         *identitySet `json:"user"`
}

type attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
}

type chatMessage struct {
	ID                   string       `json:"id"`
	ReplyToID            string       `json:"replyToId"`
	MessageType          string       `json:"messageType"`
	CreatedDateTime      *time.Time   `json:"createdDateTime"`
	LastModifiedDateTime *time.Time   `json:"lastModifiedDateTime"`
	LastEditedDateTime   *time.Time   `json:"lastEditedDateTime"`
	DeletedDateTime      *time.Time   `json:"deletedDateTime"`
	From                 *identitySet `json:"from"`
	Body                 itemBody     `json:"body"`
	Reactions            *[]reaction  `json:"reactions"`
	Attachments          []attachment `json:"attachments"`
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func bodyText(body itemBody) string {
	if strings.EqualFold(body.ContentType, "html") {
		return domain.PlainText(body.Content)
	}
	return body.Content
}

func (m chatMessage) record(conv domain.ConversationID) domain.MessageRecord {
	rec := domain.MessageRecord{
		ID:             domain.MessageID(m.ID),
		ConversationID: conv,
		Body:           bodyText(m.Body),
		CreatedAt:      timeOf(m.CreatedDateTime),
		EditedAt:       timeOf(m.LastEditedDateTime),
		ModifiedAt:     timeOf(m.LastModifiedDateTime),
		Deleted:        m.DeletedDateTime != nil,
		ReplyTo:        domain.MessageID(m.ReplyToID),
	}

	if m.From != nil {
		switch {
		case m.From.User != nil:
			rec.Sender = domain.Sender{ID: m.From.User.ID, DisplayName: m.From.User.DisplayName}
		case m.From.Application != nil:
			rec.Sender = domain.Sender{ID: m.From.Application.ID, DisplayName: m.From.Application.DisplayName}
		}
	}

	if rec.ReplyTo == "" {
		for _, a := range m.Attachments {
			if a.ContentType == "messageReference" && a.ID != "" {
				rec.ReplyTo = domain.MessageID(a.ID)
				break
			}
		}
	}

	if m.Reactions != nil {
		rec.HasReactions = true
		for _, r := range *m.Reactions {
			if r.User == nil || r.User.User == nil || r.User.User.ID == "" {
				continue
			}
			rec.Reactions = append(rec.Reactions, domain.ReactionUpdate{
				Reactor: r.User.User.ID,
				Kind:    domain.ReactionKind(r.ReactionType),
			})
		}
	}

	return rec
}

// isUserMessage filters out system events such as member additions.
func (m chatMessage) isUserMessage() bool {
	return m.MessageType == "" || m.MessageType == "message"
}

func (c chat) conversation() domain.Conversation {
	kind := domain.ConversationGroup
	if c.ChatType == "oneOnOne" {
		kind = domain.ConversationDirect
	}

	conv := domain.Conversation{
		ID:           domain.ConversationID(c.ID),
		Kind:         kind,
		Topic:        c.Topic,
		LastActivity: timeOf(c.LastUpdatedDateTime),
		Active:       true,
	}
	for _, m := range c.Members {
		conv.Members = append(conv.Members, domain.Member{UserID: m.UserID, DisplayName: m.DisplayName})
	}
	if p := c.LastMessagePreview; p != nil {
		conv.Preview = bodyText(p.Body)
		if created := timeOf(p.CreatedDateTime); created.After(conv.LastActivity) {
			conv.LastActivity = created
		}
	}
	return conv
}
