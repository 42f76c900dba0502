package citations

import (
	"fmt"
	"strings"
)

// FormatNote renders verification results as a markdown block suitable for
// appending to a stored assistant message. An empty slice renders to "".
func FormatNote(results []VerificationResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\n\n**Citation verification**\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. `%s` - %s\n", i+1, r.Citation.Matched(), verdict(r))
		if r.CorrectedCitation != "" {
			fmt.Fprintf(&b, "   - Suggested correction: `%s`\n", r.CorrectedCitation)
		}
		if r.Court != "" {
			fmt.Fprintf(&b, "   - Court: %s\n", r.Court)
		}
		if r.Date != "" {
			fmt.Fprintf(&b, "   - Date: %s\n", r.Date)
		}
		if r.Summary != "" {
			fmt.Fprintf(&b, "   - %s\n", r.Summary)
		}
		for _, src := range r.Sources {
			fmt.Fprintf(&b, "   - Source: %s\n", src)
		}
	}
	return b.String()
}

func verdict(r VerificationResult) string {
	switch {
	case r.Error != "":
		return "verification unavailable (" + r.Error + ")"
	case r.Verified:
		return "verified"
	default:
		return "not verified"
	}
}
