// Package classify routes incoming legal questions to a processing strategy.
//
// Classification is two-tier: a fixed phrase heuristic short-circuits to
// research when the question plainly needs fresh sources, and everything
// else goes through one cheap non-streaming model call. The classifier never
// returns an error; when in doubt it answers Complex, which is always safe.
package classify

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lexstream/go-counsel-backend/internal/llm"
)

// Strategy selects which response handler serves a query.
type Strategy string

// Strategies.
const (
	Simple         Strategy = "simple"
	Complex        Strategy = "complex"
	ResearchNeeded Strategy = "research_needed"
)

// Completer is the non-streaming model surface the classifier calls.
type Completer interface {
	Complete(ctx context.Context, r llm.Request) (string, error)
}

var classifierDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "classifier_decisions_total",
		Help: "Query classification outcomes by strategy and decision method.",
	},
	[]string{"strategy", "method"},
)

func init() {
	prometheus.MustRegister(classifierDecisions)
}

// researchPhrases trip the heuristic tier: questions about what the law is
// NOW need live sources, not model memory.
var researchPhrases = []string{
	"recent case", "recent cases", "recent ruling", "recent decision",
	"current law", "current precedent", "latest", "new legislation",
	"search for", "as of today", "up to date", "up-to-date",
}

// recentYearRE matches explicit years 2020 through 2029.
var recentYearRE = regexp.MustCompile(`\b202\d\b`)

// forcePhrases are explicit user requests for a live lookup. They outrank
// classification entirely; the orchestrator checks them first.
var forcePhrases = []string{"search the web", "look up", "find information"}

// ForceResearch reports whether the query explicitly demands web research.
func ForceResearch(query string) bool {
	q := strings.ToLower(query)
	for _, p := range forcePhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

const classifySystem = `You are a query classifier for a legal assistant.
Classify the user's question and respond with ONLY a JSON object of the form
{"queryType":"simple"} where queryType is one of:
- "simple": a definitional or single-concept question answerable concisely
- "complex": multi-factor legal analysis, application of law to facts
- "research_needed": requires current case law, recent statutes, or live sources
No prose, no markdown, JSON only.`

// queryTypeRE rescues the verdict when the model wraps its JSON in prose.
var queryTypeRE = regexp.MustCompile(`"queryType"\s*:\s*"(simple|complex|research_needed)"`)

// Classifier decides the strategy for a query.
type Classifier struct {
	LLM   Completer
	Model string
	Log   zerolog.Logger
}

// New constructs a Classifier. model is the fast-tier model id.
func New(llmc Completer, model string, log zerolog.Logger) *Classifier {
	return &Classifier{LLM: llmc, Model: model, Log: log}
}

// Classify picks a strategy for the query. It never returns an error: the
// heuristic tier answers first, the model tier second, and any failure along
// the way falls back to Complex.
func (c *Classifier) Classify(ctx context.Context, query string) Strategy {
	if needsResearch(query) {
		classifierDecisions.WithLabelValues(string(ResearchNeeded), "heuristic").Inc()
		return ResearchNeeded
	}

	raw, err := c.LLM.Complete(ctx, llm.Request{
		Model:     c.Model,
		System:    classifySystem,
		Messages:  []llm.Message{{Role: "user", Content: query}},
		MaxTokens: 128,
	})
	if err != nil {
		c.Log.Warn().Err(err).Msg("classifier model call failed, defaulting to complex")
		classifierDecisions.WithLabelValues(string(Complex), "fallback").Inc()
		return Complex
	}

	if s, ok := parseStrategy(raw); ok {
		classifierDecisions.WithLabelValues(string(s), "model").Inc()
		return s
	}
	c.Log.Warn().Str("raw", raw).Msg("classifier returned unrecognized verdict, defaulting to complex")
	classifierDecisions.WithLabelValues(string(Complex), "fallback").Inc()
	return Complex
}

func needsResearch(query string) bool {
	q := strings.ToLower(query)
	for _, p := range researchPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return recentYearRE.MatchString(query)
}

// parseStrategy walks the tolerance ladder: strict JSON, then a regex over
// the raw text, then bare keyword containment.
func parseStrategy(raw string) (Strategy, bool) {
	var body struct {
		QueryType string `json:"queryType"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &body); err == nil {
		if s, ok := asStrategy(body.QueryType); ok {
			return s, true
		}
	}

	if m := queryTypeRE.FindStringSubmatch(raw); m != nil {
		return Strategy(m[1]), true
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "research"):
		return ResearchNeeded, true
	case strings.Contains(lower, "complex"):
		return Complex, true
	case strings.Contains(lower, "simple"):
		return Simple, true
	}
	return "", false
}

func asStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case Simple, Complex, ResearchNeeded:
		return Strategy(s), true
	}
	return "", false
}
