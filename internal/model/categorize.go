package model

import "strings"

// Categorize groups raw candidate lines by their scheme tag.
//
// Blank lines, lines without a scheme and exact duplicates are dropped.
// Unsupported schemes are kept under their own tag so the orchestrator can
// report them as skipped rather than losing them silently.
// Input order is preserved within each group.
func Categorize(candidates []string) map[Protocol][]string {
	grouped := make(map[Protocol][]string)
	seen := make(map[string]struct{}, len(candidates))

	for _, line := range candidates {
		candidate := strings.TrimSpace(line)
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		protocol := ProtocolOf(candidate)
		if protocol == "" {
			continue
		}
		grouped[protocol] = append(grouped[protocol], candidate)
	}
	return grouped
}
