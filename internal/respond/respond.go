// Package respond implements the strategy response handlers: a concise
// fast-model path for simple questions, a structured capable-model path for
// complex analysis, and a research path that gathers web sources before
// synthesis. All three share one streaming algorithm and differ only in
// model tier, token budgets, and prompt.
package respond

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/lexstream/go-counsel-backend/internal/classify"
	"github.com/lexstream/go-counsel-backend/internal/llm"
	"github.com/lexstream/go-counsel-backend/internal/research"
	"github.com/lexstream/go-counsel-backend/internal/stream"
)

// Token and thinking budgets per strategy tier.
const (
	simpleMaxTokens  = 2048
	complexMaxTokens = 8192

	smallThinkingBudget  = 1024
	mediumThinkingBudget = 4096

	researchMaxTokens = 2048
)

// unavailableSource stands in for real sources when the research call fails;
// synthesis proceeds without findings rather than aborting the response.
const unavailableSource = "web research unavailable for this response"

// openFailedMsg is the client-facing error when the model stream never opens.
const openFailedMsg = "The assistant could not start a response. Please try again."

// Streamer is the streaming model surface.
type Streamer interface {
	Stream(ctx context.Context, r llm.Request) (<-chan llm.Delta, error)
}

// Searcher is the web research surface.
type Searcher interface {
	Search(ctx context.Context, r research.Request) (*research.Result, error)
}

// Request carries everything a handler needs to answer one query.
type Request struct {
	Strategy        classify.Strategy
	Query           string
	History         []llm.Message
	DocumentContext string
	FocusedSnippet  string
	StreamThoughts  bool
}

// Result reports what a handler produced, for persistence and verification.
type Result struct {
	Answer  string
	Model   string
	Sources []string
}

// Responder dispatches a request to its strategy handler.
type Responder struct {
	LLM      Streamer
	Research Searcher
	Fast     string
	Capable  string
	Log      zerolog.Logger
}

// New constructs a Responder. fast and capable are model ids.
func New(llmc Streamer, res Searcher, fast, capable string, log zerolog.Logger) *Responder {
	return &Responder{LLM: llmc, Research: res, Fast: fast, Capable: capable, Log: log}
}

// Respond runs the strategy handler for req, emitting events into mux. The
// event sequence is always well formed: one metadata event, then thoughts
// and answers, then exactly one complete or error. Respond returns the
// accumulated answer even when the stream ends in error, so callers can
// persist partial content.
func (r *Responder) Respond(ctx context.Context, req Request, mux *stream.Mux) (Result, error) {
	model, maxTokens, thinking := r.plan(req)
	res := Result{Model: model}

	var findings string
	if req.Strategy == classify.ResearchNeeded {
		findings, res.Sources = r.search(ctx, req.Query)
	}

	if err := mux.W.Send(stream.Event{
		Type:     stream.EventMetadata,
		Strategy: string(req.Strategy),
		Model:    model,
		Sources:  res.Sources,
	}); err != nil {
		return res, err
	}

	base := simpleSystem
	switch req.Strategy {
	case classify.Complex:
		base = complexSystem
	case classify.ResearchNeeded:
		base = researchSystem
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.LLM.Stream(ctx, llm.Request{
		Model:          model,
		System:         buildSystem(base, req, findings),
		Messages:       append(append([]llm.Message{}, req.History...), llm.Message{Role: "user", Content: req.Query}),
		MaxTokens:      maxTokens,
		ThinkingBudget: thinking,
	})
	if err != nil {
		r.Log.Error().Err(err).Str("strategy", string(req.Strategy)).Msg("model stream failed to open")
		_ = mux.W.Send(stream.Event{Type: stream.EventError, Error: openFailedMsg})
		return res, err
	}

	answer, perr := mux.Pump(ch)
	cancel()
	for range ch {
		// drain so the provider pump can exit after an early return
	}
	res.Answer = answer
	return res, perr
}

// plan picks model tier and budgets. Simple questions run on the fast model
// unless the caller asked to stream thoughts, which needs a thinking-capable
// tier; complex and research always think on the capable model.
func (r *Responder) plan(req Request) (model string, maxTokens, thinking int) {
	if req.Strategy == classify.Simple {
		if req.StreamThoughts {
			return r.Capable, simpleMaxTokens, smallThinkingBudget
		}
		return r.Fast, simpleMaxTokens, 0
	}
	return r.Capable, complexMaxTokens, mediumThinkingBudget
}

// search runs the pre-synthesis web research step. It never aborts the
// response: a failed call yields no findings and a single placeholder
// source explaining the gap.
func (r *Responder) search(ctx context.Context, query string) (findings string, sources []string) {
	out, err := r.Research.Search(ctx, research.Request{
		System:    searchSystem,
		Query:     query,
		MaxTokens: researchMaxTokens,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.Log.Warn().Err(err).Msg("web research failed, answering without findings")
		}
		return "", []string{unavailableSource}
	}
	return out.Content, out.Citations
}
