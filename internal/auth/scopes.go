package auth

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// HasScope reports whether the held scopes grant the required
// `category:verb` scope. A requirement is granted by an exact match, by
// the global wildcard `*`, or by a category wildcard such as
// `licenses:*`.
func HasScope(held []string, required string) bool {
	required = strings.TrimSpace(required)
	if required == "" {
		return true
	}
	for _, scope := range held {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if scope == ScopeWildcard || scope == required {
			return true
		}
		if strings.HasSuffix(scope, ":*") && wildcard.Match(scope, required) {
			return true
		}
	}
	return false
}
