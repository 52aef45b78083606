package ingest

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize trims surrounding whitespace and applies Unicode case folding.
func Normalize(text string) string {
	// Casers keep state, so one is built per call.
	return cases.Fold().String(strings.TrimSpace(text))
}
