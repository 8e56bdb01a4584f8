// Package llm is the chat completion client for OpenRouter, built on
// langchaingo's OpenAI-compatible client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrCompletion indicates a failed upstream completion.
	ErrCompletion = errors.New("chat completion failed")

	// ErrNoAPIKey indicates a request without a credential.
	ErrNoAPIKey = errors.New("no API key")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request is one completion call. APIKey is the credential that pays for it.
type Request struct {
	APIKey          string
	Model           string
	Messages        []Message
	MaxTokens       int
	EnableReasoning bool
}

// Response carries the first choice and its usage.
type Response struct {
	Content          string
	Reasoning        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config for Client.
type Config struct {
	BaseURL  string
	SiteURL  string
	SiteName string
	Timeout  time.Duration
}

// Client calls OpenRouter. A langchaingo model is built per request because
// the credential varies per project.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "WorkenAI"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{config: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrCompletion)
	}

	doer := &openRouterDoer{
		client:    c.http,
		siteURL:   c.config.SiteURL,
		siteName:  c.config.SiteName,
		reasoning: req.EnableReasoning,
	}
	model, err := openai.New(
		openai.WithBaseURL(strings.TrimRight(c.config.BaseURL, "/")),
		openai.WithModel(req.Model),
		openai.WithToken(req.APIKey),
		openai.WithHTTPClient(doer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}
	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrCompletion)
	}

	choice := resp.Choices[0]
	reasoning, cost := doer.captured()
	out := &Response{
		Content:          choice.Content,
		Reasoning:        reasoning,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		Cost:             cost,
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

var _ Completer = (*Client)(nil)
