// Package refine wires the refinement stage: every ingested content item is
// split into overlapping chunks, each chunk is enriched with entities, a
// temporal anchor, and a quality score, low-quality chunks are dropped, and
// the refinement settles to completed or rejected once every chunk has an
// outcome. The fan-in runs through a store-backed tally so concurrent
// enrichment handlers can neither double- nor lose-finalize.
package refine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	domain "github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
	"github.com/Sumatoshi-tech/newsfang/internal/ingest"
	"github.com/Sumatoshi-tech/newsfang/internal/nlp"
	"github.com/Sumatoshi-tech/newsfang/internal/observability"
	"github.com/Sumatoshi-tech/newsfang/internal/storage"
	"github.com/Sumatoshi-tech/newsfang/pkg/bus"
	"github.com/Sumatoshi-tech/newsfang/pkg/retry"
)

// errUnchanged signals that a mutation was a no-op and the aggregate must
// not be written back; writing an unbumped version would trip the
// optimistic lock.
var errUnchanged = errors.New("refine: aggregate unchanged")

// DefaultQualityThreshold is the minimum overall score a chunk needs to be
// kept.
const DefaultQualityThreshold = 0.3

// DefaultMaxParallel bounds the enrichment fan-out per refinement.
const DefaultMaxParallel = 4

// tracerName names the spans emitted by this package.
const tracerName = "newsfang"

// Deps carries everything the pipeline needs. Refinements, Tallies,
// Contents, CommandBus, and EventBus are required; the NLP backends default
// to the built-in heuristics, and Chunker, Metrics, Logger, and Now have
// working defaults.
type Deps struct {
	Refinements *storage.RefinementStore
	Tallies     *storage.TallyStore
	Contents    *storage.ContentStore

	Entities nlp.EntityExtractor
	Temporal nlp.TemporalExtractor
	Quality  nlp.QualityAnalyzer
	Chunker  *WindowChunker

	CommandBus *bus.CommandBus
	EventBus   *bus.EventBus
	Metrics    *observability.PipelineMetrics

	QualityThreshold float64
	MaxParallel      int

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline owns the refinement command handlers and event glue.
type Pipeline struct {
	refinements *storage.RefinementStore
	tallies     *storage.TallyStore
	contents    *storage.ContentStore

	entities nlp.EntityExtractor
	temporal nlp.TemporalExtractor
	quality  nlp.QualityAnalyzer
	chunker  *WindowChunker

	cbus    *bus.CommandBus
	ebus    *bus.EventBus
	metrics *observability.PipelineMetrics

	threshold   float64
	maxParallel int

	logger *slog.Logger
	now    func() time.Time
}

// New assembles the pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Metrics == nil {
		deps.Metrics = observability.NewNopPipelineMetrics()
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Entities == nil {
		deps.Entities = nlp.NewHeuristicEntityExtractor()
	}

	if deps.Temporal == nil {
		deps.Temporal = nlp.NewHeuristicTemporalExtractor()
	}

	if deps.Quality == nil {
		deps.Quality = nlp.NewHeuristicQualityAnalyzer()
	}

	if deps.Chunker == nil {
		deps.Chunker = NewWindowChunker(DefaultChunkerConfig())
	}

	if deps.QualityThreshold <= 0 {
		deps.QualityThreshold = DefaultQualityThreshold
	}

	if deps.MaxParallel <= 0 {
		deps.MaxParallel = DefaultMaxParallel
	}

	return &Pipeline{
		refinements: deps.Refinements,
		tallies:     deps.Tallies,
		contents:    deps.Contents,
		entities:    deps.Entities,
		temporal:    deps.Temporal,
		quality:     deps.Quality,
		chunker:     deps.Chunker,
		cbus:        deps.CommandBus,
		ebus:        deps.EventBus,
		metrics:     deps.Metrics,
		threshold:   deps.QualityThreshold,
		maxParallel: deps.MaxParallel,
		logger:      deps.Logger,
		now:         deps.Now,
	}
}

// Register binds every command handler and event subscription, then
// self-checks the command surface so a miswired pipeline fails at startup.
// Subscribing to ContentIngested chains refinement onto ingestion.
func (p *Pipeline) Register() error {
	registrations := map[string]bus.CommandHandler{
		CmdStartRefinement:      bus.Typed(p.handleStartRefinement),
		CmdChunkContent:         bus.Typed(p.handleChunkContent),
		CmdEnrichChunk:          bus.Typed(p.handleEnrichChunk),
		CmdAddChunkToRefinement: bus.Typed(p.handleAddChunkToRefinement),
		CmdFinalizeRefinement:   bus.Typed(p.handleFinalizeRefinement),
		CmdRerefineContent:      bus.Typed(p.handleRerefineContent),
	}

	for name, handler := range registrations {
		if registerErr := p.cbus.Register(name, handler); registerErr != nil {
			return fmt.Errorf("register %s: %w", name, registerErr)
		}
	}

	p.ebus.Subscribe(ingest.EvtContentIngested, bus.On(p.onContentIngested))
	p.ebus.Subscribe(EvtContentChunked, bus.On(p.onContentChunked))
	p.ebus.Subscribe(EvtAllChunksProcessed, bus.On(p.onAllChunksProcessed))

	names := make([]string, 0, len(registrations))
	for name := range registrations {
		names = append(names, name)
	}

	return p.cbus.SelfCheck(names...)
}

// lockRetryPolicy bounds optimistic-lock retries: the initial attempt plus
// three more at 50/100/200ms. Only concurrency conflicts retry.
func lockRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     200 * time.Millisecond,
		Retryable: func(err error) bool {
			return fault.Is(err, fault.KindConcurrency)
		},
	}
}

// mutateRefinement runs one load-mutate-save cycle against a refinement
// under the lock retry policy. A mutate returning errUnchanged skips the
// write; anything else bumps the version exactly once.
func (p *Pipeline) mutateRefinement(ctx context.Context, refinementID string, mutate func(*domain.Refinement) error) (*domain.Refinement, error) {
	res := retry.Execute(ctx, lockRetryPolicy(), func(ctx context.Context) (*domain.Refinement, error) {
		r, getErr := p.refinements.Get(ctx, refinementID)
		if getErr != nil {
			return nil, getErr
		}

		mutErr := mutate(r)
		if errors.Is(mutErr, errUnchanged) {
			return r, nil
		}

		if mutErr != nil {
			return nil, mutErr
		}

		if saveErr := p.refinements.Save(ctx, r); saveErr != nil {
			return nil, saveErr
		}

		return r, nil
	})

	return res.Value, res.Err
}

// execute routes a command and logs a failure instead of propagating it.
// Event glue uses it: a broken follow-up command must not poison the
// publishing stage.
func (p *Pipeline) execute(ctx context.Context, cmd bus.Command) {
	if _, execErr := p.cbus.Execute(ctx, cmd); execErr != nil {
		p.logger.ErrorContext(ctx, "command failed",
			slog.String("command", cmd.CommandName()),
			slog.String("error", execErr.Error()),
		)
	}
}
