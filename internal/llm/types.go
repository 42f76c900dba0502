// Package llm implements a thin client for an Anthropic-compatible
// Messages API. It exposes exactly two operations: Complete, a blocking
// single-shot call used by the query classifier, and Stream, which relays
// the provider's server-sent events as Delta values on a channel so that
// upper layers never touch the wire format.
package llm

import (
	"errors"
	"time"
)

// DeltaKind labels one streamed fragment from the provider.
type DeltaKind string

// Delta kinds, in the order a healthy stream produces them.
const (
	DeltaStart    DeltaKind = "start"
	DeltaThinking DeltaKind = "thinking"
	DeltaText     DeltaKind = "text"
	DeltaStop     DeltaKind = "stop"
	DeltaError    DeltaKind = "error"
)

// Delta is a single fragment of a streamed model response. Text carries
// the fragment for thinking/text kinds and the message for error kind.
type Delta struct {
	Kind DeltaKind
	Text string
}

// Message is one conversational turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single model invocation. ThinkingBudget of zero
// disables extended thinking.
type Request struct {
	Model          string
	System         string
	Messages       []Message
	MaxTokens      int
	Temperature    float64
	ThinkingBudget int
}

// Options configures a Client.
type Options struct {
	// BaseURL is the provider origin, e.g. https://api.anthropic.com.
	BaseURL string
	// APIKey authenticates requests; empty means the client is unconfigured.
	APIKey string
	// FastModel handles classification and short answers.
	FastModel string
	// CapableModel handles analysis, research synthesis, and thinking streams.
	CapableModel string
	// Timeout bounds non-streaming calls. Streams are bounded by ctx only.
	Timeout time.Duration
}

// ErrMissingAPIKey is returned when a call is attempted without credentials.
var ErrMissingAPIKey = errors.New("llm: missing API key")
