package ingest

import (
	"fmt"
	"regexp"
	"slices"
)

// Default validation bounds, in characters of normalized content.
const (
	// DefaultMinContentLength rejects fragments too short to chunk.
	DefaultMinContentLength = 16

	// DefaultMaxContentLength rejects payloads that are almost certainly
	// not editorial text.
	DefaultMaxContentLength = 100_000
)

// spamPattern matches promotional phrases that mark an item as spam
// regardless of length.
var spamPattern = regexp.MustCompile(
	`(?i)\b(buy now|act now|limited time offer|100% free|work from home|guaranteed returns|crypto giveaway)\b`,
)

// ValidationConfig tunes the pre-persistence content filters.
type ValidationConfig struct {
	// MinLength is the inclusive character floor for normalized content.
	MinLength int

	// MaxLength is the inclusive character ceiling.
	MaxLength int

	// AllowedLanguages restricts items by detected ISO-639-1 code. Empty
	// allows every language; items with no detected language always pass.
	AllowedLanguages []string
}

// DefaultValidationConfig returns the standard filter tuning.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinLength: DefaultMinContentLength,
		MaxLength: DefaultMaxContentLength,
	}
}

// Check returns the rejection reason, or the empty string when the content
// passes every filter.
func (c ValidationConfig) Check(normalized, language string) string {
	length := len([]rune(normalized))

	if length < c.MinLength {
		return fmt.Sprintf("content length %d below minimum %d", length, c.MinLength)
	}

	if c.MaxLength > 0 && length > c.MaxLength {
		return fmt.Sprintf("content length %d above maximum %d", length, c.MaxLength)
	}

	if spamPattern.MatchString(normalized) {
		return "content matches spam filter"
	}

	if len(c.AllowedLanguages) > 0 && language != "" && !slices.Contains(c.AllowedLanguages, language) {
		return fmt.Sprintf("language %s not allowed", language)
	}

	return ""
}
