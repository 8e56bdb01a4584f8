// Package conversations stores project conversations and their append-only
// message history.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/events"
	"github.com/Noctocode/worken-ai/internal/store"
)

const (
	titleMaxLen     = 80
	titleMinCutback = 40
)

type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type Conversation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is a conversation with the users who wrote in it.
type Summary struct {
	Conversation
	Participants []Participant `json:"participants"`
}

// Message carries the author's profile when the author is a user.
type Message struct {
	ID          string         `json:"id"`
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UserID      *string        `json:"userId"`
	UserName    *string        `json:"userName"`
	UserPicture *string        `json:"userPicture"`
}

type Detail struct {
	Conversation
	Messages []Message `json:"messages"`
}

type Config struct {
	Store  store.Store
	Access *access.Resolver
	Events events.Publisher
	Logger *zap.Logger
}

type Service struct {
	store  store.Store
	access *access.Resolver
	events events.Publisher
	logger *zap.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Access == nil {
		cfg.Access = access.NewResolver(cfg.Store)
	}
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, access: cfg.Access, events: cfg.Events, logger: cfg.Logger}
}

// Require returns the conversation if userID can access its project. A
// conversation in an inaccessible project is reported as not found.
func (s *Service) Require(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	notFound := apperr.NotFoundf("Conversation %s not found", conversationID)

	c, err := s.store.Conversations().Get(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if _, _, err := s.access.RequireProject(ctx, c.ProjectID, userID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, notFound
		}
		return nil, err
	}
	return c, nil
}

// FindByProject lists the project's conversations, most recently active first.
func (s *Service) FindByProject(ctx context.Context, projectID, userID string) ([]Summary, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	convs, err := s.store.Conversations().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		return []Summary{}, nil
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	authors, err := s.store.Messages().AuthorIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}
	users, err := s.usersByID(ctx, authors)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, len(convs))
	for i, c := range convs {
		participants := []Participant{}
		for _, uid := range authors[c.ID] {
			if u, ok := users[uid]; ok {
				participants = append(participants, Participant{ID: u.ID, Name: u.Name, Picture: u.Picture})
			}
		}
		out[i] = Summary{Conversation: view(c), Participants: participants}
	}
	return out, nil
}

func (s *Service) usersByID(ctx context.Context, authors map[string][]string) (map[string]store.User, error) {
	seen := map[string]bool{}
	var ids []string
	for _, list := range authors {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	out := make(map[string]store.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.store.Users().GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// FindOne returns the conversation with its messages in order.
func (s *Service) FindOne(ctx context.Context, conversationID, userID string) (*Detail, error) {
	c, err := s.Require(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().ListByConversation(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	authors := map[string][]string{}
	for _, m := range msgs {
		if m.UserID != nil {
			authors[c.ID] = append(authors[c.ID], *m.UserID)
		}
	}
	users, err := s.usersByID(ctx, authors)
	if err != nil {
		return nil, err
	}

	out := &Detail{Conversation: view(*c), Messages: make([]Message, len(msgs))}
	for i, m := range msgs {
		mv := Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
			UserID:    m.UserID,
		}
		if m.UserID != nil {
			if u, ok := users[*m.UserID]; ok {
				name, picture := u.Name, u.Picture
				mv.UserName, mv.UserPicture = &name, &picture
			}
		}
		out.Messages[i] = mv
	}
	return out, nil
}

// Create starts an untitled conversation in the project.
func (s *Service) Create(ctx context.Context, projectID, userID string) (*Conversation, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	c := &store.Conversation{ProjectID: projectID, UserID: userID}
	if err := s.store.Conversations().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	v := view(*c)
	return &v, nil
}

// Remove deletes the conversation and its messages.
func (s *Service) Remove(ctx context.Context, conversationID, userID string) error {
	c, err := s.Require(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.store.Conversations().Delete(ctx, c.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// AddMessage appends a message and bumps the conversation's activity time in
// one transaction. The first user message also names an untitled
// conversation. userID is nil for assistant messages.
func (s *Service) AddMessage(ctx context.Context, conversationID, role, content string, userID *string, metadata map[string]any) (*store.Message, error) {
	msg := &store.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		UserID:         userID,
	}

	var projectID string
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		c, err := tx.Conversations().Get(ctx, conversationID)
		if err != nil {
			return err
		}
		projectID = c.ProjectID

		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		var title string
		if role == store.MessageRoleUser {
			title = TitleFromContent(content)
		}
		at := msg.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return tx.Conversations().Touch(ctx, conversationID, at, title)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Conversation %s not found", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}

	e := events.Event{
		Type:      events.ConversationMessageAdded,
		ProjectID: projectID,
		Payload:   map[string]any{"conversation_id": conversationID, "message_id": msg.ID, "role": role},
	}
	if userID != nil {
		e.UserID = *userID
	}
	s.events.Publish(ctx, e)
	return msg, nil
}

// TitleFromContent cuts content to 80 characters, backing up to the last
// space when it lies past the 40th character, and marks the cut with "...".
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	cut := string(runes[:titleMaxLen])
	if i := strings.LastIndex(cut, " "); i >= 0 && len([]rune(cut[:i])) > titleMinCutback {
		cut = cut[:i]
	}
	return cut + "..."
}

func view(c store.Conversation) Conversation {
	return Conversation(c)
}
