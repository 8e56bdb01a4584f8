package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/llm"
)

const (
	// DefaultJudgeModel scores compared answers.
	DefaultJudgeModel = "stepfun/step-3.5-flash:free"

	judgeAttempts = 3
)

var (
	errNoJSONArray = errors.New("no JSON array in judge reply")
	errEmptyScores = errors.New("judge returned no scores")

	// listSplit splits string-valued lists on newlines, literal \n and bullets.
	listSplit = regexp.MustCompile(`(?m)\r?\n|\\n|•|^\s*-\s*`)

	validate = validator.New()
)

// CompareRequest asks every model the same question.
type CompareRequest struct {
	Models         []string `json:"models" validate:"required,min=1,max=8,dive,required"`
	Question       string   `json:"question" validate:"required"`
	ExpectedOutput string   `json:"expectedOutput"`
}

// Answer is one model's reply with its cost.
type Answer struct {
	Model       string      `json:"model"`
	Response    AnswerReply `json:"response"`
	TotalTokens int         `json:"totalTokens"`
	TotalCost   float64     `json:"totalCost"`
	TimeMs      int64       `json:"time"`
}

type AnswerReply struct {
	Content string `json:"content"`
}

// Score is the judge's verdict on one model, annotated with the model's usage.
type Score struct {
	Name          string   `json:"name" validate:"required"`
	Score         float64  `json:"score" validate:"gte=0,lte=10"`
	Advantages    []string `json:"advantages"`
	Disadvantages []string `json:"disadvantages"`
	Summary       string   `json:"summary"`
	TotalTokens   *int     `json:"totalTokens,omitempty"`
	TotalCost     *float64 `json:"totalCost,omitempty"`
	TimeMs        *int64   `json:"time,omitempty"`
}

type Comparison struct {
	Comparison []Score  `json:"comparison"`
	Responses  []Answer `json:"responses"`
}

// Evaluator runs model comparisons on the deployment credential.
type Evaluator struct {
	completer  llm.Completer
	apiKey     string
	judgeModel string
	logger     *zap.Logger
}

func NewEvaluator(completer llm.Completer, apiKey, judgeModel string, logger *zap.Logger) *Evaluator {
	if judgeModel == "" {
		judgeModel = DefaultJudgeModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{completer: completer, apiKey: apiKey, judgeModel: judgeModel, logger: logger}
}

// Compare asks every model concurrently, then has the judge score the
// answers. An unusable verdict is retried before giving up.
func (e *Evaluator) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperr.BadRequest("models and question are required")
	}

	answers := make([]Answer, len(req.Models))
	g, gctx := errgroup.WithContext(ctx)
	for i, model := range req.Models {
		g.Go(func() error {
			start := time.Now()
			resp, err := e.completer.Complete(gctx, llm.Request{
				APIKey:   e.apiKey,
				Model:    model,
				Messages: []llm.Message{{Role: llm.RoleUser, Content: req.Question}},
			})
			if err != nil {
				return fmt.Errorf("model %s: %w", model, err)
			}
			answers[i] = Answer{
				Model:       model,
				Response:    AnswerReply{Content: resp.Content},
				TotalTokens: resp.TotalTokens,
				TotalCost:   resp.Cost,
				TimeMs:      time.Since(start).Milliseconds(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Upstream("Model comparison failed", err)
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encoding answers: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= judgeAttempts; attempt++ {
		resp, err := e.completer.Complete(ctx, llm.Request{
			APIKey: e.apiKey,
			Model:  e.judgeModel,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: judgePrompt(req.ExpectedOutput, string(answersJSON))},
				{Role: llm.RoleUser, Content: string(answersJSON)},
			},
		})
		if err == nil {
			var scores []Score
			if scores, err = ParseScores(resp.Content); err == nil {
				return &Comparison{Comparison: annotate(scores, answers), Responses: answers}, nil
			}
		}
		lastErr = err
		e.logger.Warn("judge reply unusable",
			zap.Int("attempt", attempt),
			zap.String("judge_model", e.judgeModel),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, apperr.Upstream("Model comparison failed", lastErr)
}

type rawScore struct {
	Name          string          `json:"name"`
	Score         float64         `json:"score"`
	Advantages    json.RawMessage `json:"advantages"`
	Disadvantages json.RawMessage `json:"disadvantages"`
	Summary       string          `json:"summary"`
}

// ParseScores extracts the JSON array between the first '[' and the last ']'
// and validates every entry.
func ParseScores(content string) ([]Score, error) {
	start, end := strings.Index(content, "["), strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, errNoJSONArray
	}

	var raw []rawScore
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decoding judge reply: %w", err)
	}
	if len(raw) == 0 {
		return nil, errEmptyScores
	}

	scores := make([]Score, len(raw))
	for i, r := range raw {
		s := Score{
			Name:          r.Name,
			Score:         r.Score,
			Advantages:    toList(r.Advantages),
			Disadvantages: toList(r.Disadvantages),
			Summary:       r.Summary,
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(s.Advantages) == 0 && len(s.Disadvantages) == 0 {
			return nil, fmt.Errorf("entry %d: no advantages or disadvantages", i)
		}
		scores[i] = s
	}
	return scores, nil
}

// toList accepts a JSON array of strings or a single string of lines or bullets.
func toList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return trimAll(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return trimAll(listSplit.Split(s, -1))
	}
	return []string{}
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func annotate(scores []Score, answers []Answer) []Score {
	byModel := make(map[string]Answer, len(answers))
	for _, a := range answers {
		if _, ok := byModel[a.Model]; !ok {
			byModel[a.Model] = a
		}
	}
	for i := range scores {
		if a, ok := byModel[scores[i].Name]; ok {
			tokens, cost, ms := a.TotalTokens, a.TotalCost, a.TimeMs
			scores[i].TotalTokens, scores[i].TotalCost, scores[i].TimeMs = &tokens, &cost, &ms
		}
	}
	return scores
}

func judgePrompt(expected, answers string) string {
	return `You are an expert AI evaluator with extensive experience benchmarking LLMs. Strictly compare the provided model answers against the EXPECTED OUTPUT below. Assess accuracy (factual correctness, completeness), closeness to the expected output (semantic match, structure, detail level), and overall quality.

EXPECTED OUTPUT: ` + expected + `

MODEL ANSWERS:

` + answers + `

For each model:
1. Compare its answer directly to the EXPECTED OUTPUT and note matches and mismatches in facts, structure and completeness.
2. Score from 0.0 to 10.0 with one decimal: 10.0 is identical to the expected output, 9+ a near-perfect match, 7-8 strong with minor gaps, 5-6 moderate accuracy, below 5 major errors or omissions, 0 unrelated or wrong.
3. List 1-5 unique advantages (e.g. "precise facts", "concise").
4. List 1-5 unique disadvantages (e.g. "missed key detail", "added hallucination").
5. Write a neutral 2-5 sentence summary that explains the score relative to the other models.

Output ONLY a valid JSON array of objects, one per model, using the EXACT model names from the input (even duplicates). No extra text, explanations, or markdown.

[
  {
    "name": "exact_model_name_here",
    "score": 9.5,
    "advantages": ["advantage 1", "advantage 2"],
    "disadvantages": ["disadvantage 1"],
    "summary": "2-5 sentence summary."
  }
]

Higher scores should come with more advantages, lower scores with more disadvantages. Keep each item under 10 words.`
}
