package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// openRouterDoer adapts langchaingo's OpenAI client to OpenRouter. It adds
// attribution headers, injects request fields the client does not know
// about, and captures response fields it does not parse.
type openRouterDoer struct {
	client    *http.Client
	siteURL   string
	siteName  string
	reasoning bool

	mu            sync.Mutex
	reasoningText string
	cost          float64
}

type openRouterReply struct {
	Choices []struct {
		Message struct {
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		Cost float64 `json:"cost"`
	} `json:"usage"`
}

func (d *openRouterDoer) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && req.Body != nil {
		if err := d.rewriteBody(req); err != nil {
			return nil, err
		}
	}
	if d.siteURL != "" {
		req.Header.Set("HTTP-Referer", d.siteURL)
	}
	if d.siteName != "" {
		req.Header.Set("X-Title", d.siteName)
	}

	resp, err := d.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	var reply openRouterReply
	if json.Unmarshal(raw, &reply) == nil {
		d.mu.Lock()
		if len(reply.Choices) > 0 {
			d.reasoningText = reply.Choices[0].Message.Reasoning
			if d.reasoningText == "" {
				d.reasoningText = reply.Choices[0].Message.ReasoningContent
			}
		}
		d.cost = reply.Usage.Cost
		d.mu.Unlock()
	}
	return resp, nil
}

func (d *openRouterDoer) rewriteBody(req *http.Request) error {
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		if d.reasoning {
			body["reasoning"] = map[string]any{"enabled": true}
		}
		body["usage"] = map[string]any{"include": true}
		if rewritten, err := json.Marshal(body); err == nil {
			raw = rewritten
		}
	}

	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.ContentLength = int64(len(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return nil
}

func (d *openRouterDoer) captured() (string, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reasoningText, d.cost
}
