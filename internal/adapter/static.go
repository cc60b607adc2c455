package adapter

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// staticConfigSchema constrains static source configs: a non-empty items
// array of objects that each carry at least content text.
const staticConfigSchema = `{
	"type": "object",
	"required": ["items"],
	"properties": {
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["content"],
				"properties": {
					"content": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"author": {"type": "string"},
					"url": {"type": "string"},
					"publishedAt": {"type": "string", "format": "date-time"}
				}
			}
		}
	}
}`

// Static serves items inlined in the source configuration. It exists for
// smoke tests and for feeding ad-hoc content through the full pipeline;
// network-backed adapters register alongside it in production builds.
type Static struct{}

// NewStatic creates the static adapter.
func NewStatic() *Static {
	return &Static{}
}

// Collect reads the inlined items from the source config.
func (a *Static) Collect(_ context.Context, src *source.Source) ([]RawItem, error) {
	rawItems, ok := src.Config["items"].([]any)
	if !ok {
		return nil, fault.OfType(fault.ErrorTypeParsing, "static source config has no items array")
	}

	now := time.Now().UTC()
	items := make([]RawItem, 0, len(rawItems))

	for _, entry := range rawItems {
		fields, fieldsOk := entry.(map[string]any)
		if !fieldsOk {
			return nil, fault.OfType(fault.ErrorTypeParsing, "static source item is not an object")
		}

		text, textOk := fields["content"].(string)
		if !textOk || text == "" {
			return nil, fault.OfType(fault.ErrorTypeParsing, "static source item has no content")
		}

		item := RawItem{
			RawContent:  text,
			SourceType:  TypeStatic,
			CollectedAt: now,
			Metadata: content.Metadata{
				Title:     stringField(fields, "title"),
				Author:    stringField(fields, "author"),
				SourceURL: stringField(fields, "url"),
			},
		}

		if publishedAt, parseOk := timeField(fields, "publishedAt"); parseOk {
			item.Metadata.PublishedAt = &publishedAt
		}

		items = append(items, item)
	}

	return items, nil
}

// Supports reports whether the adapter handles the source type.
func (a *Static) Supports(sourceType string) bool {
	return sourceType == TypeStatic
}

// ConfigSchema returns the JSON Schema static configs must match.
func (a *Static) ConfigSchema() string {
	return staticConfigSchema
}

// stringField reads an optional string from a config object.
func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)

	return s
}

// timeField reads an optional RFC 3339 timestamp from a config object.
func timeField(fields map[string]any, key string) (time.Time, bool) {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}

	parsed, parseErr := time.Parse(time.RFC3339, s)
	if parseErr != nil {
		return time.Time{}, false
	}

	return parsed, true
}
