// Package utils provides small, generic helpers shared across layers; no
// domain logic lives here.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// malformed. Surrounding whitespace is tolerated since the inputs are query
// string parameters (page, page_size, limit).
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
