// Package sanitize is a pure-function collaborator for stripping
// user-supplied text before persistence. It is explicitly out of scope for
// the concurrency/consistency core; the implementation here is the minimal
// stand-in the core calls on the deck-name write path.
package sanitize

import "strings"

// Text strips HTML angle-bracket content and trims surrounding whitespace.
// It does not attempt a general-purpose sanitizer; callers that need one
// should replace this with a real HTML sanitizer at the edge.
func Text(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
