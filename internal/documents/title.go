package documents

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/llm"
)

// UntitledDocument is used when no title can be produced.
const UntitledDocument = "Untitled Document"

const (
	titlePrompt    = "Summarize what this text is about in 2-5 words. Reply with only the title, no quotes or punctuation.\n\n"
	titleInputLen  = 500
	titleMaxTokens = 20
)

// Titler names pasted text. It never fails; it falls back to UntitledDocument.
type Titler interface {
	Title(ctx context.Context, apiKey, text string) string
}

// LLMTitler asks a chat model for a short title.
type LLMTitler struct {
	completer llm.Completer
	model     string
	logger    *zap.Logger
}

func NewLLMTitler(completer llm.Completer, model string, logger *zap.Logger) *LLMTitler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMTitler{completer: completer, model: model, logger: logger}
}

func (t *LLMTitler) Title(ctx context.Context, apiKey, text string) string {
	if apiKey == "" || t.completer == nil {
		return UntitledDocument
	}
	resp, err := t.completer.Complete(ctx, llm.Request{
		APIKey:    apiKey,
		Model:     t.model,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: titlePrompt + truncateRunes(text, titleInputLen)}},
		MaxTokens: titleMaxTokens,
	})
	if err != nil {
		t.logger.Warn("title generation failed", zap.Error(err))
		return UntitledDocument
	}
	if title := strings.TrimSpace(resp.Content); title != "" {
		return title
	}
	return UntitledDocument
}

// StaticTitler always returns UntitledDocument.
type StaticTitler struct{}

func (StaticTitler) Title(context.Context, string, string) string { return UntitledDocument }

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
