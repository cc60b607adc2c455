// Package adapter defines the source adapter port and its registry.
// Concrete fetchers (HTTP, RSS, PDF, OCR) live outside the core; the
// pipeline only sees the port, a JSON-Schema-validated configuration, and
// the resilient fetch wrapper that drives collection.
package adapter

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
)

// Well-known source types. The registry accepts any key; these are the
// ones shipped configurations use.
const (
	TypeRSS         = "RSS"
	TypeWeb         = "WEB"
	TypeSocialMedia = "SOCIAL_MEDIA"
	TypePDF         = "PDF"
	TypeOCR         = "OCR"
	TypeWikipedia   = "WIKIPEDIA"
	TypeStatic      = "STATIC"
)

// RawItem is one piece of content as an adapter collected it, before
// normalization.
type RawItem struct {
	RawContent  string
	Metadata    content.Metadata
	SourceType  string
	CollectedAt time.Time
}

// Validation is the outcome of checking a source configuration against an
// adapter's schema.
type Validation struct {
	IsValid bool
	Errors  []string
}

// Adapter is the source adapter port.
type Adapter interface {
	// Collect fetches the currently available items for the source.
	Collect(ctx context.Context, src *source.Source) ([]RawItem, error)

	// Supports reports whether the adapter handles the source type.
	Supports(sourceType string) bool

	// ConfigSchema returns the JSON Schema its source configs must match.
	ConfigSchema() string
}
