// Package strings provides string helpers shared by config parsing.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value into trimmed, non-empty, unique
// items in their original order. An empty input yields nil.
func SplitList(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
