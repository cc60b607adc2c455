// Package textnorm turns raw collected text into its canonical normalized
// form: HTML and control characters stripped, boilerplate lines removed,
// Unicode normalized to NFC and whitespace collapsed. Case is preserved so
// the normalized form is stable input for content hashing.
package textnorm

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// charsPerToken approximates how many characters one token spans.
// Chunk geometry and token estimates share this ratio.
const charsPerToken = 4

var (
	// scriptBlockPattern matches whole <script> and <style> elements
	// including their contents.
	scriptBlockPattern = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)

	// tagPattern matches a single HTML tag.
	tagPattern = regexp.MustCompile(`<[^>]*>`)

	// boilerplatePattern matches lines that carry navigation or legal
	// chrome rather than content. Matching lines are dropped whole.
	boilerplatePattern = regexp.MustCompile(`(?i)(subscribe|sign up|newsletter|cookie|all rights reserved|click here|read more|advertisement|sponsored|share this|follow us|terms of service|privacy policy)`)
)

// Normalize returns the canonical form of raw content. The transformation
// is deterministic: the same input always yields the same output, so the
// output is a stable basis for SHA-256 content hashing.
func Normalize(raw string) string {
	text := html.UnescapeString(raw)
	text = scriptBlockPattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = norm.NFC.String(text)
	text = stripNonPrinting(text)
	text = dropBoilerplateLines(text)

	return strings.Join(strings.Fields(text), " ")
}

// TokenEstimate approximates the token count of s at roughly four
// characters per token. Always at least 1 for non-empty input.
func TokenEstimate(s string) int {
	runes := len([]rune(s))
	if runes == 0 {
		return 0
	}

	tokens := runes / charsPerToken
	if tokens == 0 {
		return 1
	}

	return tokens
}

// stripNonPrinting replaces control and zero-width format characters with
// spaces, keeping newlines so line-based boilerplate removal still sees
// line boundaries.
func stripNonPrinting(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}

		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return ' '
		}

		return r
	}, s)
}

// dropBoilerplateLines removes lines matching boilerplatePattern.
func dropBoilerplateLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]

	for _, line := range lines {
		if boilerplatePattern.MatchString(line) {
			continue
		}

		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}
