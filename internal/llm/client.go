package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"

	// scanBufCap bounds a single SSE line; thinking deltas can run long.
	scanBufCap = 1 << 20
)

// Client talks to an Anthropic-compatible Messages API endpoint.
// The zero value is not usable; construct with New.
type Client struct {
	BaseURL      string
	APIKey       string
	FastModel    string
	CapableModel string
	Timeout      time.Duration

	HTTP *http.Client
	Log  zerolog.Logger
}

// New builds a Client from Options. The embedded http.Client carries no
// response timeout of its own: streams live as long as their context, and
// Complete applies Options.Timeout per call.
func New(opts Options, log zerolog.Logger) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(opts.BaseURL, "/"),
		APIKey:       opts.APIKey,
		FastModel:    opts.FastModel,
		CapableModel: opts.CapableModel,
		Timeout:      opts.Timeout,
		HTTP:         &http.Client{},
		Log:          log,
	}
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Thinking    *wireThinking `json:"thinking,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string     `json:"stop_reason"`
	Error      *wireError `json:"error"`
}

// wireEvent is the union of streaming event payloads we care about; all
// other event types (ping, content_block_start, ...) are skipped.
type wireEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Error *wireError `json:"error"`
}

func (c *Client) newRequest(ctx context.Context, r Request, stream bool) (*http.Request, error) {
	w := wireRequest{
		Model:       r.Model,
		System:      r.System,
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Stream:      stream,
	}
	if r.ThinkingBudget > 0 {
		w.Thinking = &wireThinking{Type: "enabled", BudgetTokens: r.ThinkingBudget}
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// Complete performs a blocking, non-streaming model call and returns the
// concatenated text blocks of the response.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, r, false)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: complete: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm: provider error: %s", out.Error.Message)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("llm: empty completion (stop reason %q)", out.StopReason)
	}
	return b.String(), nil
}

// Stream opens a streaming model call and relays provider events as Delta
// values. A nil error means the channel is live; it is closed after the
// terminal stop or error delta. The caller must drain the channel to
// completion; cancelling ctx ends the stream, so draining stays cheap.
func (c *Client) Stream(ctx context.Context, r Request) (<-chan Delta, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	req, err := c.newRequest(ctx, r, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("llm: open stream: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}

	out := make(chan Delta, 16)
	go c.pump(resp.Body, out)
	return out, nil
}

// pump reads SSE frames off the response body until the provider signals
// message_stop, an error frame arrives, or the body read fails (including
// context cancellation). It always closes both body and channel.
func (c *Client) pump(body io.ReadCloser, out chan<- Delta) {
	defer close(out)
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), scanBufCap)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev wireEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			c.Log.Debug().Err(err).Msg("llm: skipping malformed stream frame")
			continue
		}

		switch ev.Type {
		case "message_start":
			out <- Delta{Kind: DeltaStart}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "thinking_delta":
				out <- Delta{Kind: DeltaThinking, Text: ev.Delta.Thinking}
			case "text_delta":
				out <- Delta{Kind: DeltaText, Text: ev.Delta.Text}
			}
		case "message_stop":
			out <- Delta{Kind: DeltaStop}
			return
		case "error":
			msg := "provider stream error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			out <- Delta{Kind: DeltaError, Text: msg}
			return
		}
	}

	if err := sc.Err(); err != nil {
		out <- Delta{Kind: DeltaError, Text: err.Error()}
		return
	}
	// Body ended without a message_stop frame; treat as a clean stop so
	// downstream still finalizes the response.
	out <- Delta{Kind: DeltaStop}
}

// snippet reads a short error-body excerpt for diagnostics.
func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
