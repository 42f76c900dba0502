package search

import (
	"bufio"
	"regexp"
	"strings"
)

// NormalizeExtractedText prepares raw extractor output for paragraph
// indexing. PDF extraction typically leaves hard-wrapped lines and page
// artifacts; this pass rejoins wrapped lines inside a paragraph, drops
// page-number-only lines, and collapses blank runs so paragraphs split
// cleanly on "\n\n".
//
// Notes:
//   - Avoids emitting a leading blank line.
//   - Trims the tail so the result never ends in a newline.
func NormalizeExtractedText(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var b strings.Builder
	b.Grow(len(s))
	inPara := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if inPara {
				b.WriteString("\n\n")
				inPara = false
			}
			continue
		}
		if pageArtifactRE.MatchString(line) {
			continue
		}
		if inPara {
			b.WriteByte(' ')
		}
		b.WriteString(line)
		inPara = true
	}
	// Scanning an in-memory reader cannot fail; drop the sentinel error.
	_ = sc.Err()
	return strings.TrimSpace(b.String())
}

// pageArtifactRE matches lines that carry only pagination: "12",
// "Page 3 of 10", "- 4 -".
var pageArtifactRE = regexp.MustCompile(`^(?:-\s*)?(?:[Pp]age\s+)?\d+(?:\s+of\s+\d+)?(?:\s*-)?$`)
