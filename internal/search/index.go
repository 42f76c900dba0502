// Package search provides a simple, deterministic, concurrency-safe in-memory
// search index over the extracted text of case documents. It backs the
// document-picker endpoint and is rebuilt from the store on startup. It is
// intentionally small and dependency-free, but engineered with
// production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//   - Sensible defaults (paragraph filtering, result caps)
//
// Scoring uses Jaccard similarity between the query token set and each
// paragraph’s token set: score = |Q ∩ P| / |Q ∪ P|. Results are collapsed to
// the best-scoring paragraph per document, since the endpoint exists to help
// users pick documents, not passages.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lexstream/go-counsel-backend/internal/domain"
)

// Result is one matching document with its best snippet and score.
type Result struct {
	DocumentID string
	Filename   string
	Snippet    string
	Score      float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	// Search returns up to k documents from the case ranked by best-paragraph
	// similarity to query.
	Search(caseID, query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
	maxEntries        int
}

func defaultConfig() config {
	return config{
		minParagraphRunes: 40,
		stopwords:         nil,
		maxEntries:        0,
	}
}

func WithMinParagraphRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minParagraphRunes = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxEntries caps the total number of indexed paragraphs across all
// documents.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type entry struct {
	caseID     string
	documentID string
	filename   string
	text       string
	tokens     map[string]struct{}
	tLen       int
}

type index struct {
	cfg     config
	entries []entry
}

// NewDocumentIndex builds an Index from case documents. Each document's
// extracted text is normalized (see NormalizeExtractedText), split into
// paragraphs on blank lines, and indexed per paragraph.
func NewDocumentIndex(docs []domain.Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	entries := make([]entry, 0, len(docs))
	count := 0
build:
	for _, d := range docs {
		for _, raw := range splitParas(NormalizeExtractedText(d.ExtractedText)) {
			t := strings.TrimSpace(normalizeWhitespace(raw))
			if t == "" {
				continue
			}
			if cfg.minParagraphRunes > 0 && utf8.RuneCountInString(t) < cfg.minParagraphRunes {
				continue
			}
			toks := tokenize(t, cfg.stopwords)
			if len(toks) == 0 {
				continue
			}
			entries = append(entries, entry{
				caseID:     d.CaseID,
				documentID: d.ID,
				filename:   d.Filename,
				text:       t,
				tokens:     toks,
				tLen:       len(toks),
			})
			count++
			if cfg.maxEntries > 0 && count >= cfg.maxEntries {
				break build
			}
		}
	}
	return &index{cfg: cfg, entries: entries}
}

// Search returns up to k best-matching documents in caseID by Jaccard
// similarity of their best paragraph. An empty caseID searches all cases.
func (i *index) Search(caseID, query string, k int) []Result {
	if len(i.entries) == 0 {
		return nil
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	qTokens := tokenize(query, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	// Best paragraph per document.
	best := make(map[string]Result)
	for _, e := range i.entries {
		if caseID != "" && e.caseID != caseID {
			continue
		}
		over := overlap(qTokens, e.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + e.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score <= 0 {
			continue
		}
		cur, seen := best[e.documentID]
		if !seen || score > cur.Score ||
			(score == cur.Score && utf8.RuneCountInString(e.text) < utf8.RuneCountInString(cur.Snippet)) {
			best[e.documentID] = Result{
				DocumentID: e.documentID,
				Filename:   e.filename,
				Snippet:    e.text,
				Score:      score,
			}
		}
	}
	if len(best) == 0 {
		return nil
	}

	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if out[a].DocumentID != out[b].DocumentID {
			return out[a].DocumentID < out[b].DocumentID
		}
		return out[a].Snippet < out[b].Snippet
	})

	if k > len(out) {
		k = len(out)
	}
	return out[:k]
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitParas(s string) []string {
	chunks := paraSplitRE.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
