// Package chat implements the multi-provider LLM dispatch: per-provider HTTP
// clients, bounded retry with exponential backoff, and extraction of
// structured payloads from conversational output.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/infogenie/backend/internal/app/domain/chat"
	"github.com/infogenie/backend/internal/config"
	"github.com/infogenie/backend/pkg/logger"
)

// attemptKind classifies the outcome of one provider call attempt. The
// classification stays inside this package; callers only see the final
// DispatchError after retries are exhausted.
type attemptKind int

const (
	attemptSuccess attemptKind = iota
	attemptUpstreamError
	attemptTimeout
	attemptTransport
)

type attemptResult struct {
	kind   attemptKind
	text   string
	status int
	body   string
	detail string
}

func (r attemptResult) retryable() bool {
	return r.kind != attemptSuccess
}

const maxErrorBody = 8 << 10

// client calls one configured provider's chat-completion endpoint.
type client struct {
	cfg  config.Provider
	http *http.Client
	log  *logger.Logger
}

func newClient(cfg config.Provider, log *logger.Logger) *client {
	return &client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("provider", cfg.Name),
	}
}

type completionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
}

// complete performs one chat-completion attempt against the provider.
func (c *client) complete(ctx context.Context, model string, messages []chat.Message) attemptResult {
	payload, err := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return attemptResult{kind: attemptTransport, detail: fmt.Sprintf("marshal request: %v", err)}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.CompletionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return attemptResult{kind: attemptTransport, detail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return attemptResult{kind: attemptTimeout, detail: "request timed out"}
		}
		return attemptResult{kind: attemptTransport, detail: err.Error()}
	}
	defer resp.Body.Close()

	body := readLimited(resp.Body, maxErrorBody)

	if resp.StatusCode != http.StatusOK {
		return attemptResult{
			kind:   attemptUpstreamError,
			status: resp.StatusCode,
			body:   strings.TrimSpace(body),
		}
	}

	content := gjson.Get(body, "choices.0.message.content")
	if !content.Exists() {
		return attemptResult{kind: attemptTransport, detail: "malformed provider response: no choices content"}
	}
	return attemptResult{kind: attemptSuccess, text: content.String()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func readLimited(r io.Reader, limit int64) string {
	body, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(body)
}
