package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/llm"
)

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, s []Score)
	}{
		{
			name:    "wrapped in prose",
			content: "Here you go:\n```json\n[{\"name\":\"a\",\"score\":8.5,\"advantages\":[\"concise\"],\"disadvantages\":[],\"summary\":\"Good.\"}]\n```",
			check: func(t *testing.T, s []Score) {
				require.Len(t, s, 1)
				assert.Equal(t, "a", s[0].Name)
				assert.Equal(t, 8.5, s[0].Score)
				assert.Equal(t, []string{"concise"}, s[0].Advantages)
				assert.Equal(t, []string{}, s[0].Disadvantages)
			},
		},
		{
			name:    "string lists are split",
			content: `[{"name":"b","score":3,"advantages":"- fast\n- cheap","disadvantages":"wrong date • missed key detail","summary":"Weak."}]`,
			check: func(t *testing.T, s []Score) {
				assert.Equal(t, []string{"fast", "cheap"}, s[0].Advantages)
				assert.Equal(t, []string{"wrong date", "missed key detail"}, s[0].Disadvantages)
			},
		},
		{name: "no array", content: "I cannot evaluate this.", wantErr: true},
		{name: "empty array", content: "[]", wantErr: true},
		{name: "score out of range", content: `[{"name":"a","score":11,"advantages":["x"],"disadvantages":[]}]`, wantErr: true},
		{name: "missing name", content: `[{"score":5,"advantages":["x"],"disadvantages":[]}]`, wantErr: true},
		{name: "no pros or cons", content: `[{"name":"a","score":5,"advantages":[],"disadvantages":[]}]`, wantErr: true},
		{name: "malformed", content: `[{"name":"a",}]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := ParseScores(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, scores)
		})
	}
}

const verdict = `[
  {"name":"model/a","score":9.1,"advantages":["precise"],"disadvantages":["verbose"],"summary":"Closest."},
  {"name":"model/b","score":4.0,"advantages":[],"disadvantages":["wrong year"],"summary":"Off."}
]`

func TestCompare(t *testing.T) {
	judgeCalls := 0
	c := &scriptedCompleter{reply: func(req llm.Request) (*llm.Response, error) {
		if req.Model == DefaultJudgeModel {
			judgeCalls++
			if judgeCalls == 1 {
				return &llm.Response{Content: "Sorry, here is my analysis in prose."}, nil
			}
			return &llm.Response{Content: verdict}, nil
		}
		return &llm.Response{Content: "answer from " + req.Model, TotalTokens: 10, Cost: 0.002}, nil
	}}
	e := NewEvaluator(c, "sk-or-deployment", "", nil)

	out, err := e.Compare(context.Background(), CompareRequest{
		Models:         []string{"model/a", "model/b"},
		Question:       "When was the company founded?",
		ExpectedOutput: "1998",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, judgeCalls)

	require.Len(t, out.Responses, 2)
	assert.Equal(t, "model/a", out.Responses[0].Model)
	assert.Equal(t, "answer from model/b", out.Responses[1].Response.Content)

	require.Len(t, out.Comparison, 2)
	assert.Equal(t, 9.1, out.Comparison[0].Score)
	require.NotNil(t, out.Comparison[0].TotalTokens)
	assert.Equal(t, 10, *out.Comparison[0].TotalTokens)
	assert.InDelta(t, 0.002, *out.Comparison[1].TotalCost, 1e-9)

	for _, req := range c.requests {
		assert.Equal(t, "sk-or-deployment", req.APIKey)
		assert.False(t, req.EnableReasoning)
	}
}

func TestCompare_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := NewEvaluator(&scriptedCompleter{}, "k", "", nil).Compare(ctx, CompareRequest{Question: "q"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	judgeCalls := 0
	stubborn := &scriptedCompleter{reply: func(req llm.Request) (*llm.Response, error) {
		if req.Model == "judge" {
			judgeCalls++
			return &llm.Response{Content: "[not json]"}, nil
		}
		return &llm.Response{Content: "ok"}, nil
	}}
	_, err = NewEvaluator(stubborn, "k", "judge", nil).Compare(ctx, CompareRequest{Models: []string{"m"}, Question: "q"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, judgeAttempts, judgeCalls)

	failing := &scriptedCompleter{reply: func(llm.Request) (*llm.Response, error) { return nil, errors.New("model unavailable") }}
	_, err = NewEvaluator(failing, "k", "judge", nil).Compare(ctx, CompareRequest{Models: []string{"m"}, Question: "q"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}
