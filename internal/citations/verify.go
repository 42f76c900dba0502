package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexstream/go-counsel-backend/internal/research"
)

// MaxSources caps supporting links kept per verification result.
const MaxSources = 5

// Researcher is the research-client surface the verifier needs.
type Researcher interface {
	Search(ctx context.Context, r research.Request) (*research.Result, error)
}

// VerificationResult pairs a citation with its verification verdict. It is
// ephemeral: the only persisted form is the rendered markdown note.
type VerificationResult struct {
	Citation          Citation
	Verified          bool
	CorrectedCitation string
	Court             string
	Date              string
	Summary           string
	Sources           []string
	Error             string
}

// verificationSchema is the JSON shape the research provider must return.
var verificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"verified":          map[string]any{"type": "boolean"},
		"correctedCitation": map[string]any{"type": "string"},
		"court":             map[string]any{"type": "string"},
		"date":              map[string]any{"type": "string"},
		"summary":           map[string]any{"type": "string"},
		"sources": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"verified"},
}

const verifySystem = "You are a legal citation checker. Answer strictly with a JSON object " +
	"matching the requested schema. Set verified to true only when authoritative sources " +
	"confirm the citation exactly as written; when the substance exists under a different " +
	"citation, set verified to false and supply correctedCitation."

// Verifier checks citations against legal sources through a research client.
type Verifier struct {
	Research Researcher
	Log      zerolog.Logger
}

// NewVerifier constructs a Verifier.
func NewVerifier(r Researcher, log zerolog.Logger) *Verifier {
	return &Verifier{Research: r, Log: log}
}

// Verify checks one citation. It never returns an error: any failure
// (missing credentials, network, unparsable response) comes back as an
// unverified result with Error set.
func (v *Verifier) Verify(ctx context.Context, c Citation) VerificationResult {
	res := VerificationResult{Citation: c}

	out, err := v.Research.Search(ctx, research.Request{
		System:    verifySystem,
		Query:     verificationPrompt(c),
		Schema:    verificationSchema,
		MaxTokens: 1024,
	})
	if err != nil {
		res.Error = err.Error()
		v.Log.Warn().Err(err).Str("citation", c.Matched()).Msg("citation verification call failed")
		return res
	}

	var parsed struct {
		Verified          bool     `json:"verified"`
		CorrectedCitation string   `json:"correctedCitation"`
		Court             string   `json:"court"`
		Date              string   `json:"date"`
		Summary           string   `json:"summary"`
		Sources           []string `json:"sources"`
	}
	if err := json.Unmarshal([]byte(jsonBody(out.Content)), &parsed); err != nil {
		res.Error = "unparsable verification response"
		v.Log.Warn().Err(err).Str("citation", c.Matched()).Msg("citation verification returned non-JSON")
		return res
	}

	res.Verified = parsed.Verified
	res.CorrectedCitation = parsed.CorrectedCitation
	res.Court = parsed.Court
	res.Date = parsed.Date
	res.Summary = parsed.Summary

	sources := parsed.Sources
	if len(sources) == 0 {
		sources = out.Citations
	}
	if len(sources) > MaxSources {
		sources = sources[:MaxSources]
	}
	res.Sources = sources
	return res
}

// verificationPrompt builds the citation-type-specific task description.
func verificationPrompt(c Citation) string {
	switch c.(type) {
	case Case:
		return fmt.Sprintf("Verify this case citation: %q. Confirm the parties, volume, reporter, "+
			"page, and year are accurate; identify the deciding court and decision date; and "+
			"summarize the holding in one sentence.", c.Matched())
	case Statute:
		return fmt.Sprintf("Verify this statute citation: %q. Confirm the provision exists and is "+
			"current law, and state its scope in one sentence.", c.Matched())
	case Regulation:
		return fmt.Sprintf("Verify this regulation citation: %q. Identify the issuing agency and "+
			"effective date, and confirm the provision is currently in force.", c.Matched())
	default:
		return fmt.Sprintf("Verify this legal citation: %q.", c.Matched())
	}
}

// jsonBody strips any prose or code fences around the first JSON object.
func jsonBody(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
