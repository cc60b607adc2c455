package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
)

// NewProcessContentCommand returns the command that feeds one piece of raw
// text through the full pipeline: normalization, validation, dedup,
// persistence, and refinement. Reads the file argument, or stdin for "-".
func NewProcessContentCommand(opts *GlobalOptions) *cobra.Command {
	var (
		title       string
		author      string
		language    string
		sourceURL   string
		publishedAt string
	)

	cmd := &cobra.Command{
		Use:   "process-content <file|->",
		Short: "Feed raw text through the full pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, readErr := readContent(cmd, args[0])
			if readErr != nil {
				return readErr
			}

			meta, metaErr := buildMetadata(title, author, language, sourceURL, publishedAt)
			if metaErr != nil {
				return metaErr
			}

			a, loadErr := loadApp(cmd.Context(), opts)
			if loadErr != nil {
				return loadErr
			}

			defer func() { _ = a.Close() }()

			// The buses dispatch synchronously, so the whole chain has
			// settled by the time Execute returns.
			var ingested *ingest.ContentIngested

			a.EventBus.Subscribe(ingest.EvtContentIngested, bus.On(func(_ context.Context, evt ingest.ContentIngested) error {
				ingested = &evt

				return nil
			}))

			_, execErr := a.CommandBus.Execute(cmd.Context(), ingest.NormalizeContent{
				RawContent: string(raw),
				Metadata:   meta,
			})
			if execErr != nil {
				return execErr
			}

			if ingested == nil {
				return fault.New(fault.KindValidation, "content was rejected or duplicate; nothing persisted")
			}

			r, findErr := a.Refinements.FindLatestByContentItem(cmd.Context(), ingested.ContentID)
			if findErr != nil {
				return findErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "content %s ingested; refinement %s %s with %d chunks\n",
				ingested.ContentID, r.ID, r.Status, len(r.Chunks))

			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "content title")
	cmd.Flags().StringVar(&author, "author", "", "content author")
	cmd.Flags().StringVar(&language, "language", "", "ISO 639-1 language code (default: detected)")
	cmd.Flags().StringVar(&sourceURL, "url", "", "original content URL")
	cmd.Flags().StringVar(&publishedAt, "published", "", "publication time in RFC 3339")

	return cmd
}

// readContent loads the positional argument, treating "-" as stdin.
func readContent(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		raw, readErr := io.ReadAll(cmd.InOrStdin())
		if readErr != nil {
			return nil, fmt.Errorf("read stdin: %w", readErr)
		}

		return raw, nil
	}

	raw, readErr := os.ReadFile(arg)
	if readErr != nil {
		return nil, fmt.Errorf("read content: %w", readErr)
	}

	return raw, nil
}

func buildMetadata(title, author, language, sourceURL, publishedAt string) (content.Metadata, error) {
	meta := content.Metadata{
		Title:     title,
		Author:    author,
		Language:  language,
		SourceURL: sourceURL,
	}

	if publishedAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, publishedAt)
		if parseErr != nil {
			return content.Metadata{}, fault.Newf(fault.KindValidation, "parse --published %q: must be RFC 3339", publishedAt)
		}

		meta.PublishedAt = &parsed
	}

	return meta, nil
}
