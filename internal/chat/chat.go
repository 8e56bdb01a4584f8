// Package chat answers conversation messages with project context and
// compares models against an expected answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/conversations"
	"github.com/Noctocode/worken-ai/internal/guardrails"
	"github.com/Noctocode/worken-ai/internal/llm"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

const (
	// DefaultModel answers when neither the request nor the project names one.
	DefaultModel = "moonshotai/kimi-k2.5"

	contextTopK      = 5
	contextSeparator = "\n\n---\n\n"
	contextPreamble  = "Use the following project context to inform your answers. Reference this information when relevant.\n\n"
)

// Searcher retrieves project chunks similar to a query.
type Searcher interface {
	Search(ctx context.Context, projectID, query string, k int) ([]vectorstore.Result, error)
}

// KeyResolver returns the credential for a project's LLM calls.
type KeyResolver interface {
	ForProject(ctx context.Context, projectID, userID string) string
}

// Request is one user turn. ProjectID, when set, must match the conversation.
type Request struct {
	ConversationID  string
	ProjectID       string
	Content         string
	Model           string
	EnableReasoning *bool
}

// Reply is the assistant turn.
type Reply struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

type Config struct {
	Store         store.Store
	Conversations *conversations.Service
	Documents     Searcher
	Keys          KeyResolver
	Completer     llm.Completer
	Guardrails    *guardrails.Guardrails
	DefaultModel  string
	Logger        *zap.Logger
}

type Service struct {
	store         store.Store
	conversations *conversations.Service
	documents     Searcher
	keys          KeyResolver
	completer     llm.Completer
	guardrails    *guardrails.Guardrails
	defaultModel  string
	logger        *zap.Logger
}

func NewService(cfg Config) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:         cfg.Store,
		conversations: cfg.Conversations,
		documents:     cfg.Documents,
		keys:          cfg.Keys,
		completer:     cfg.Completer,
		guardrails:    cfg.Guardrails,
		defaultModel:  cfg.DefaultModel,
		logger:        cfg.Logger,
	}
}

// Send stores the user message, answers it with retrieved project context,
// and stores the answer.
func (s *Service) Send(ctx context.Context, principal access.Principal, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.BadRequest("content is required")
	}
	conv, err := s.conversations.Require(ctx, req.ConversationID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != "" && req.ProjectID != conv.ProjectID {
		return nil, apperr.BadRequest("projectId does not match the conversation")
	}

	content := s.screen(ctx, conv, req.Content)
	userID := principal.UserID
	if _, err := s.conversations.AddMessage(ctx, conv.ID, store.MessageRoleUser, content, &userID, nil); err != nil {
		return nil, err
	}

	chunks, err := s.documents.Search(ctx, conv.ProjectID, content, contextTopK)
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	history, err := s.store.Messages().ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	model, err := s.model(ctx, req.Model, conv.ProjectID)
	if err != nil {
		return nil, err
	}
	reasoning := true
	if req.EnableReasoning != nil {
		reasoning = *req.EnableReasoning
	}

	resp, err := s.completer.Complete(ctx, llm.Request{
		APIKey:          s.keys.ForProject(ctx, conv.ProjectID, principal.UserID),
		Model:           model,
		Messages:        BuildMessages(strings.Join(contents, contextSeparator), history),
		EnableReasoning: reasoning,
	})
	if err != nil {
		return nil, apperr.Upstream("Chat completion failed", err)
	}

	metadata := map[string]any{"model": model}
	if resp.Reasoning != "" {
		metadata["reasoning"] = resp.Reasoning
	}
	if resp.TotalTokens > 0 {
		metadata["totalTokens"] = resp.TotalTokens
	}
	if _, err := s.conversations.AddMessage(ctx, conv.ID, store.MessageRoleAssistant, resp.Content, nil, metadata); err != nil {
		return nil, err
	}

	s.logger.Info("chat reply",
		zap.String("conversation_id", conv.ID),
		zap.String("model", model),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("total_tokens", resp.TotalTokens))
	return &Reply{Role: store.MessageRoleAssistant, Content: resp.Content, Reasoning: resp.Reasoning}, nil
}

// screen redacts credentials before content is stored or sent upstream.
func (s *Service) screen(ctx context.Context, conv *store.Conversation, content string) string {
	if s.guardrails == nil {
		return content
	}
	res := s.guardrails.Check(content, guardrails.SecretsOnly)
	if !res.HasFindings() {
		return content
	}
	s.logger.Warn("credentials redacted from chat message",
		zap.String("conversation_id", conv.ID),
		zap.Strings("rules", res.RuleIDs()))
	return res.Redacted
}

func (s *Service) model(ctx context.Context, requested, projectID string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	p, err := s.store.Projects().Get(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return s.defaultModel, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading project: %w", err)
	}
	if p.Model != "" {
		return p.Model, nil
	}
	return s.defaultModel, nil
}

// BuildMessages prefixes history with a context system message when context
// is non-empty.
func BuildMessages(projectContext string, history []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	if projectContext != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: contextPreamble + projectContext})
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == store.MessageRoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
