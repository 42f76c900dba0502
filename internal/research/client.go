// Package research implements a client for a Perplexity-compatible web
// research API. Every call is scoped to an allow-list of legal sources via
// search_domain_filter, and callers that need machine-readable output can
// attach a JSON schema the provider must satisfy. The research response
// handler uses it for the pre-synthesis search step; the citation verifier
// uses it for structured verification.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const completionsPath = "/chat/completions"

// LegalDomains is the default source allow-list for every search. The
// provider only consults pages on these hosts.
var LegalDomains = []string{
	"law.cornell.edu",
	"supreme.justia.com",
	"caselaw.findlaw.com",
	"courtlistener.com",
	"govinfo.gov",
	"uscourts.gov",
	"congress.gov",
	"ecfr.gov",
	"oyez.org",
	"scholar.google.com",
}

// ErrMissingAPIKey is returned when a call is attempted without credentials.
var ErrMissingAPIKey = errors.New("research: missing API key")

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to a Perplexity-compatible chat-completions endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	HTTP *http.Client
	Log  zerolog.Logger
}

// New builds a Client from Options.
func New(opts Options, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		APIKey:  opts.APIKey,
		Model:   opts.Model,
		Timeout: opts.Timeout,
		HTTP:    &http.Client{},
		Log:     log,
	}
}

// Request describes one research call.
type Request struct {
	// System frames the provider's role for this call.
	System string
	// Query is the user-facing question or verification task.
	Query string
	// Domains overrides the source allow-list; nil applies LegalDomains.
	Domains []string
	// Schema, when non-nil, is sent as a json_schema response_format and
	// obliges the provider to answer with conforming JSON.
	Schema map[string]any
	// MaxTokens caps the response; zero leaves the provider default.
	MaxTokens int
}

// Result carries the provider's answer and the URLs it consulted.
type Result struct {
	Content   string
	Citations []string
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireJSONSchema struct {
	Schema map[string]any `json:"schema"`
}

type wireResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema wireJSONSchema `json:"json_schema"`
}

type wireRequest struct {
	Model              string              `json:"model"`
	Messages           []wireMessage       `json:"messages"`
	MaxTokens          int                 `json:"max_tokens,omitempty"`
	SearchDomainFilter []string            `json:"search_domain_filter,omitempty"`
	ResponseFormat     *wireResponseFormat `json:"response_format,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Search performs one web-grounded completion restricted to legal sources.
func (c *Client) Search(ctx context.Context, r Request) (*Result, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	domains := r.Domains
	if domains == nil {
		domains = LegalDomains
	}

	var msgs []wireMessage
	if r.System != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: r.System})
	}
	msgs = append(msgs, wireMessage{Role: "user", Content: r.Query})

	w := wireRequest{
		Model:              c.Model,
		Messages:           msgs,
		MaxTokens:          r.MaxTokens,
		SearchDomainFilter: domains,
	}
	if r.Schema != nil {
		w.ResponseFormat = &wireResponseFormat{
			Type:       "json_schema",
			JSONSchema: wireJSONSchema{Schema: r.Schema},
		}
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("research: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("research: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("research: search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("research: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("research: provider error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("research: provider returned no choices")
	}

	return &Result{
		Content:   out.Choices[0].Message.Content,
		Citations: out.Citations,
	}, nil
}
