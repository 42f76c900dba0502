package respond

import "strings"

// System prompts per strategy. All three share the same guardrails; they
// differ in how much structure and sourcing the answer must carry.
const (
	simpleSystem = `You are a legal research assistant for licensed attorneys.
Answer the question concisely and directly. Define the concept, note the one
or two authorities that anchor it, and stop. Do not pad the answer with
caveats the reader already knows. This is attorney work product, not legal
advice to a layperson.`

	complexSystem = `You are a legal research assistant for licensed attorneys.
Work through the question as a structured analysis: identify the issues,
state the governing rules with citations, apply them to the facts at hand,
and give a reasoned conclusion for each issue. Make your reasoning explicit,
flag genuinely unsettled points, and distinguish binding from persuasive
authority. This is attorney work product, not legal advice to a layperson.`

	researchSystem = `You are a legal research assistant for licensed attorneys.
Synthesize the web research findings below into an answer. Every factual or
legal claim drawn from the findings must carry an inline markdown citation
to its source, written as [source name](url). Say plainly when the findings
do not cover part of the question instead of filling the gap from memory.
This is attorney work product, not legal advice to a layperson.`

	searchSystem = `You are a legal research engine. Report what current,
authoritative legal sources say about the query: holdings, effective dates,
and jurisdictions. Facts only, no advice.`
)

const (
	snippetHeading  = "The user has highlighted this passage and is asking about it specifically:"
	contextHeading  = "## Case documents"
	findingsHeading = "## Web research findings"
)

// buildSystem assembles the system prompt from the strategy base plus the
// optional focused snippet, document context, and research findings.
func buildSystem(base string, req Request, findings string) string {
	var b strings.Builder
	b.WriteString(base)
	if req.FocusedSnippet != "" {
		b.WriteString("\n\n")
		b.WriteString(snippetHeading)
		b.WriteString("\n\n> ")
		b.WriteString(req.FocusedSnippet)
	}
	if req.DocumentContext != "" {
		b.WriteString("\n\n")
		b.WriteString(contextHeading)
		b.WriteString("\n\n")
		b.WriteString(req.DocumentContext)
	}
	if findings != "" {
		b.WriteString("\n\n")
		b.WriteString(findingsHeading)
		b.WriteString("\n\n")
		b.WriteString(findings)
	}
	return b.String()
}
