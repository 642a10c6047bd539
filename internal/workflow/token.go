package workflow

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Placeholder delimiters. A token is the name between them: {{CITY}}.
const (
	tokenOpen  = "{{"
	tokenClose = "}}"
)

// foldKey normalizes a field name or placeholder token for matching.
//
// Record fields come from spreadsheet headers, which are not guaranteed to
// be NFC (composed accents vs combining marks differ between export tools).
// Normalize first, then case-fold, so "Café" matches "CAFÉ" regardless of
// how the accent was encoded.
func foldKey(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// Tokens extracts every placeholder token from a step value, in order of
// appearance. Literal values yield nil. Unterminated delimiters are treated
// as literal text, matching the behavior of the learning-mode recorder.
func Tokens(value string) []string {
	var tokens []string
	rest := value
	for {
		start := strings.Index(rest, tokenOpen)
		if start < 0 {
			return tokens
		}
		end := strings.Index(rest[start+len(tokenOpen):], tokenClose)
		if end < 0 {
			return tokens
		}
		tok := rest[start+len(tokenOpen) : start+len(tokenOpen)+end]
		if tok != "" {
			tokens = append(tokens, tok)
		}
		rest = rest[start+len(tokenOpen)+end+len(tokenClose):]
	}
}

// HasTokens reports whether a step value contains at least one placeholder.
func HasTokens(value string) bool {
	return len(Tokens(value)) > 0
}

// expand substitutes every placeholder in value with its resolved field
// value. resolve must return found=false for unknown tokens; unknown tokens
// are left in place (callers validate exhaustively before expanding).
func expand(value string, resolve func(token string) (string, bool)) string {
	var b strings.Builder
	rest := value
	for {
		start := strings.Index(rest, tokenOpen)
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start+len(tokenOpen):], tokenClose)
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		tok := rest[start+len(tokenOpen) : start+len(tokenOpen)+end]
		b.WriteString(rest[:start])
		if v, ok := resolve(tok); ok {
			b.WriteString(v)
		} else {
			b.WriteString(tokenOpen + tok + tokenClose)
		}
		rest = rest[start+len(tokenOpen)+end+len(tokenClose):]
	}
}
