package keys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrProvisioning indicates a failed key management call.
var ErrProvisioning = errors.New("key provisioning failed")

// Key is a newly created credential. Hash identifies it to the management API.
type Key struct {
	Key  string
	Hash string
}

// Provisioner creates and adjusts credentials.
type Provisioner interface {
	CreateKey(ctx context.Context, name string, creditLimitUSD float64) (Key, error)
	UpdateKey(ctx context.Context, hash string, creditLimitUSD float64) error
	DeleteKey(ctx context.Context, hash string) error
}

// OpenRouterProvisioner talks to the OpenRouter key management API with a
// provisioning key.
type OpenRouterProvisioner struct {
	baseURL         string
	provisioningKey string
	client          *http.Client
}

// NewOpenRouterProvisioner returns a client for baseURL, e.g. https://openrouter.ai/api/v1.
func NewOpenRouterProvisioner(baseURL, provisioningKey string) *OpenRouterProvisioner {
	return &OpenRouterProvisioner{
		baseURL:         strings.TrimRight(baseURL, "/"),
		provisioningKey: provisioningKey,
		client:          &http.Client{Timeout: 30 * time.Second},
	}
}

type createKeyRequest struct {
	Name        string  `json:"name"`
	CreditLimit float64 `json:"credit_limit"`
	LimitReset  string  `json:"limit_reset"`
}

type createKeyResponse struct {
	Key  string `json:"key"`
	Data struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

func (p *OpenRouterProvisioner) CreateKey(ctx context.Context, name string, creditLimitUSD float64) (Key, error) {
	var resp createKeyResponse
	err := p.do(ctx, http.MethodPost, "/keys", createKeyRequest{
		Name:        name,
		CreditLimit: creditLimitUSD,
		LimitReset:  "monthly",
	}, &resp)
	if err != nil {
		return Key{}, err
	}
	if resp.Key == "" || resp.Data.Hash == "" {
		return Key{}, fmt.Errorf("%w: response missing key or hash", ErrProvisioning)
	}
	return Key{Key: resp.Key, Hash: resp.Data.Hash}, nil
}

func (p *OpenRouterProvisioner) UpdateKey(ctx context.Context, hash string, creditLimitUSD float64) error {
	return p.do(ctx, http.MethodPatch, "/keys/"+url.PathEscape(hash), map[string]float64{"credit_limit": creditLimitUSD}, nil)
}

func (p *OpenRouterProvisioner) DeleteKey(ctx context.Context, hash string) error {
	return p.do(ctx, http.MethodDelete, "/keys/"+url.PathEscape(hash), nil, nil)
}

func (p *OpenRouterProvisioner) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.provisioningKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrProvisioning, method, path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

var _ Provisioner = (*OpenRouterProvisioner)(nil)
