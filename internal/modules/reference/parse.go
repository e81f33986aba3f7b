package reference

import (
	"regexp"
	"strings"
)

// Diagnostic reports one input line that could not be resolved.
// Batches never abort on bad lines; callers surface the diagnostics instead.
type Diagnostic struct {
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

// Inventory pastes annotate names with parenthesised quantities or locations.
var parenPattern = regexp.MustCompile(`\([^)]*\)`)

// ParseItemList resolves a pasted multi-line item list to item ids.
// Parenthesised annotations are stripped, anything after a tab is ignored,
// blank lines are skipped. Unknown names are collected as diagnostics.
func ParseItemList(text string, idx *Index) ([]int, []Diagnostic) {
	var (
		ids         []int
		diagnostics []Diagnostic
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name := parenPattern.ReplaceAllString(line, "\t")
		name = strings.TrimSpace(strings.SplitN(name, "\t", 2)[0])
		if name == "" {
			continue
		}

		id, ok := idx.ItemID(name)
		if !ok {
			diagnostics = append(diagnostics, Diagnostic{
				Line:   line,
				Reason: "unknown item name '" + name + "'",
			})
			continue
		}
		ids = append(ids, id)
	}

	return ids, diagnostics
}
