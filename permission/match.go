package permission

import (
	"sort"
	"strings"
)

// Wildcard grants every permission or scope.
const Wildcard = "*"

// Matches reports whether a single grant covers required.
func Matches(grant, required string) bool {
	if grant == Wildcard || grant == required {
		return true
	}
	if strings.HasSuffix(grant, ":*") {
		return strings.HasPrefix(required, grant[:len(grant)-1])
	}
	return false
}

// HasAll reports whether granted covers every entry of required.
// An empty requirement list is always satisfied.
func HasAll(granted, required []string) bool {
	return len(Missing(granted, required)) == 0
}

// Missing returns the required entries not covered by granted, in input order.
func Missing(granted, required []string) []string {
	var missing []string
	for _, req := range required {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		covered := false
		for _, g := range granted {
			if Matches(g, req) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, req)
		}
	}
	return missing
}

// Normalize trims, drops empty entries, removes duplicates and sorts.
func Normalize(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
