// Package citations extracts legal citations from free text and verifies
// them against authoritative legal sources.
//
// Extraction is an ordered battery of regex pattern families (full case
// citations, short forms, state reporters, UK/Commonwealth neutral
// citations, U.S. Code, CFR, Public Law, state codes, Federal Register,
// administrative decisions). Each family maps its capture groups onto the
// fields meaningful for that family only. Matching is heuristic:
// overlapping hits from different families are all kept, and no
// deduplication or conflict resolution is performed.
package citations

import (
	"regexp"
	"strings"
)

// Kind labels a citation family.
type Kind string

// Citation kinds.
const (
	KindCase       Kind = "case"
	KindStatute    Kind = "statute"
	KindRegulation Kind = "regulation"
)

// Citation is one extracted legal reference. Concrete variants are Case,
// Statute, and Regulation.
type Citation interface {
	// Kind reports the citation family.
	Kind() Kind
	// Matched returns the exact substring the pattern matched.
	Matched() string
}

// Case is a judicial or administrative decision reference. Short forms and
// neutral citations fill only the fields their pattern carries.
type Case struct {
	Raw       string
	Plaintiff string
	Defendant string
	Volume    string
	Reporter  string
	Page      string
	Year      string
}

// Kind implements Citation.
func (Case) Kind() Kind { return KindCase }

// Matched implements Citation.
func (c Case) Matched() string { return c.Raw }

// Statute is a statutory reference (U.S. Code, Public Law, state codes).
type Statute struct {
	Raw     string
	Title   string
	Code    string
	Section string
}

// Kind implements Citation.
func (Statute) Kind() Kind { return KindStatute }

// Matched implements Citation.
func (s Statute) Matched() string { return s.Raw }

// Regulation is a regulatory reference: CFR rules carry Title/Source/Section,
// Federal Register notices carry Volume/Source/Page.
type Regulation struct {
	Raw     string
	Volume  string
	Source  string
	Page    string
	Title   string
	Section string
}

// Kind implements Citation.
func (Regulation) Kind() Kind { return KindRegulation }

// Matched implements Citation.
func (r Regulation) Matched() string { return r.Raw }

// Reporter alternations are ordered longest-first so the leftmost-first
// regexp engine prefers the most specific form.
const (
	federalReporters = `U\.S\.|S\. ?Ct\.|L\. ?Ed\. ?2d|L\. ?Ed\.|F\. ?Supp\. ?[23]d|F\. ?Supp\.|F\.4th|F\. ?[23]d|F\.`
	stateReporters   = `N\.E\. ?[23]d|N\.E\.|N\.W\. ?2d|N\.W\.|S\.E\. ?2d|S\.E\.|S\.W\. ?[23]d|S\.W\.|So\. ?[23]d|P\. ?[23]d|A\. ?[23]d|Cal\. ?App\. ?[2345]th|Cal\. ?[2345]th|N\.Y\. ?[23]d|N\.Y\.S\. ?[23]d`
	adminReporters   = `I\. ?& ?N\. ?Dec\.|I&N Dec\.|B\.I\.A\.|T\.C\.|F\.C\.C\. ?Rcd\.|S\.E\.C\.|N\.L\.R\.B\.`
	ukCourts         = `UKSC|UKHL|UKPC|EWCA(?: (?:Civ|Crim))?|EWHC(?: \((?:Admin|Ch|QB|KB|Comm)\))?|HCA|SCC|NZSC`

	// partyChars excludes the comma so a match cannot begin inside a
	// preceding clause; defendantChars includes it because the trailing
	// ", Volume Reporter" anchor disambiguates the end of the name.
	partyChars     = `[A-Za-z0-9&.'’\- ]`
	defendantChars = `[A-Za-z0-9&.,'’\- ]`
	// sectionBody never ends on a bare dot, so a sentence-final period
	// stays out of the section number.
	sectionBody = `\d(?:[0-9a-zA-Z.\-]*[0-9a-zA-Z])?(?:\([0-9a-zA-Z]+\))*`
)

var (
	caseFullRE = regexp.MustCompile(
		`([A-Z]` + partyChars + `+?)\s+v\.\s+([A-Z]` + defendantChars + `+?),\s+(\d{1,4})\s+(` + federalReporters + `)\s+(\d{1,5})(?:,\s*\d+(?:[-–]\d+)?)?\s*\(([^)]*?)\s*(\d{4})\)`)

	caseSupraRE = regexp.MustCompile(
		`([A-Z]` + partyChars + `+?)\s+v\.\s+([A-Z]` + partyChars + `+?),\s+supra(?:,?\s+at\s+(\d+))?`)

	caseIdRE = regexp.MustCompile(`\bId\.,?\s+at\s+(\d+)`)

	caseStateRE = regexp.MustCompile(
		`([A-Z]` + partyChars + `+?)\s+v\.\s+([A-Z]` + defendantChars + `+?),\s+(\d{1,4})\s+(` + stateReporters + `)\s+(\d{1,5})(?:,\s*\d+(?:[-–]\d+)?)?\s*\(([^)]*?)\s*(\d{4})\)`)

	caseUKRE = regexp.MustCompile(
		`(?:([A-Z]` + partyChars + `+?)\s+v\.?\s+([A-Z]` + partyChars + `+?)\s+)?\[(\d{4})\]\s+(` + ukCourts + `)\s+(\d+)`)

	uscRE = regexp.MustCompile(`\b(\d{1,2})\s+(U\.S\.C\.(?:A\.)?)\s+§§?\s*(` + sectionBody + `)`)

	cfrRE = regexp.MustCompile(`\b(\d{1,2})\s+(C\.F\.R\.)\s+§§?\s*(` + sectionBody + `)`)

	pubLawRE = regexp.MustCompile(`\bPub\. ?L\. ?No\. ?(\d{2,3})[-–](\d+)`)

	stateCodeRE = regexp.MustCompile(
		`\b((?:[A-Z][A-Za-z.]{0,14}\s+){1,4}(?:Code|Laws|Law|Stat\.)(?:\s+Ann\.)?)\s+§§?\s*(` + sectionBody + `)`)

	fedRegRE = regexp.MustCompile(`\b(\d{1,3})\s+(Fed\. ?Reg\.)\s+([\d,]+)`)

	adminRE = regexp.MustCompile(
		`\b((?:In re|Matter of)\s+[A-Z]` + partyChars + `+?),\s+(\d{1,4})\s+(` + adminReporters + `)\s+(\d{1,5})(?:\s*\(([^)]*?)\s*(\d{4})\))?`)
)

// leadIns are signal words that precede a case name in running prose and
// get swallowed by the plaintiff group; they are stripped after matching.
var leadIns = map[string]bool{
	"In": true, "See": true, "Cf.": true, "Accord": true, "Compare": true,
	"Contra": true, "But": true, "And": true, "E.g.": true, "Citing": true,
	"Quoting": true, "Under": true, "Per": true, "As": true,
}

func trimLeadIn(name string) string {
	words := strings.Fields(name)
	for len(words) > 1 && leadIns[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// matcher couples one pattern family with its record builder.
type matcher struct {
	re    *regexp.Regexp
	build func(m []string) Citation
}

// matchers run in this order; the position of a family in the battery is
// the only precedence between overlapping matches.
var matchers = []matcher{
	{caseFullRE, func(m []string) Citation {
		return Case{Raw: m[0], Plaintiff: trimLeadIn(m[1]), Defendant: strings.TrimSpace(m[2]),
			Volume: m[3], Reporter: m[4], Page: m[5], Year: m[7]}
	}},
	{caseSupraRE, func(m []string) Citation {
		return Case{Raw: m[0], Plaintiff: trimLeadIn(m[1]), Defendant: strings.TrimSpace(m[2]), Page: m[3]}
	}},
	{caseIdRE, func(m []string) Citation {
		return Case{Raw: m[0], Page: m[1]}
	}},
	{caseStateRE, func(m []string) Citation {
		return Case{Raw: m[0], Plaintiff: trimLeadIn(m[1]), Defendant: strings.TrimSpace(m[2]),
			Volume: m[3], Reporter: m[4], Page: m[5], Year: m[7]}
	}},
	{caseUKRE, func(m []string) Citation {
		return Case{Raw: m[0], Plaintiff: trimLeadIn(m[1]), Defendant: strings.TrimSpace(m[2]),
			Year: m[3], Reporter: m[4], Page: m[5]}
	}},
	{uscRE, func(m []string) Citation {
		return Statute{Raw: m[0], Title: m[1], Code: m[2], Section: m[3]}
	}},
	{cfrRE, func(m []string) Citation {
		return Regulation{Raw: m[0], Title: m[1], Source: m[2], Section: m[3]}
	}},
	{pubLawRE, func(m []string) Citation {
		return Statute{Raw: m[0], Title: m[1], Code: "Pub. L.", Section: m[2]}
	}},
	{stateCodeRE, func(m []string) Citation {
		return Statute{Raw: m[0], Code: strings.Join(strings.Fields(m[1]), " "), Section: m[2]}
	}},
	{fedRegRE, func(m []string) Citation {
		return Regulation{Raw: m[0], Volume: m[1], Source: m[2], Page: m[3]}
	}},
	{adminRE, func(m []string) Citation {
		return Case{Raw: m[0], Plaintiff: strings.TrimSpace(m[1]),
			Volume: m[2], Reporter: m[3], Page: m[4], Year: m[6]}
	}},
}

// Extract scans text for legal citations and returns them in battery order:
// all hits of the first pattern family, then the second, and so on. The
// result order defines which citations a bounded verifier sees first.
func Extract(text string) []Citation {
	var out []Citation
	for _, m := range matchers {
		for _, g := range m.re.FindAllStringSubmatch(text, -1) {
			out = append(out, m.build(g))
		}
	}
	return out
}
