package tree

import (
	"fmt"
	"strings"

	"github.com/poiesic/lexsearch/core"
)

// ParsePath decomposes identifier into its path segments.
// It returns the segments and the separator used to join them back.
// prefix, when non-empty, is stripped before parsing.
func ParsePath(identifier, prefix string) ([]string, string, error) {
	trimmed := strings.TrimSpace(identifier)
	if prefix != "" {
		trimmed = strings.TrimPrefix(trimmed, prefix)
	}
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil, "", fmt.Errorf("%w: %q is empty", core.ErrMalformedIdentifier, identifier)
	}

	sep := "."
	if strings.Contains(trimmed, "/") {
		sep = "/"
	}

	segments := strings.Split(trimmed, sep)
	for i, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return nil, "", fmt.Errorf("%w: %q has an empty segment at position %d",
				core.ErrMalformedIdentifier, identifier, i)
		}
	}
	return segments, sep, nil
}

// prefixes returns the identifier of every path prefix, shortest first.
// The last element is the full identifier.
func prefixes(segments []string, sep string) []string {
	out := make([]string, len(segments))
	for i := range segments {
		out[i] = strings.Join(segments[:i+1], sep)
	}
	return out
}
