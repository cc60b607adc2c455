package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/newsfang/internal/crypto"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/source"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// autoDisableReason marks sources taken offline by the health watchdog.
const autoDisableReason = "Automatic disable due to health issues"

// defaultDeleteReason marks operator-initiated soft deletes.
const defaultDeleteReason = "Deleted by operator"

// handleCreateSource registers a new source, validating the adapter config
// against its schema when an adapter for the type is present, and sealing
// credentials before they touch the store. Returns the source id.
func (p *Pipeline) handleCreateSource(ctx context.Context, cmd CreateSource) (any, error) {
	id := cmd.SourceID
	if id == "" {
		id = uuid.NewString()
	}

	if validateErr := p.validateSourceConfig(cmd.Type, cmd.Config); validateErr != nil {
		return nil, validateErr
	}

	sealed, sealErr := p.sealCredentials(cmd.Credentials)
	if sealErr != nil {
		return nil, sealErr
	}

	src, newErr := source.New(id, cmd.Type, cmd.Name, cmd.Config, sealed)
	if newErr != nil {
		return nil, newErr
	}

	if saveErr := p.sources.Save(ctx, src); saveErr != nil {
		return nil, saveErr
	}

	p.logger.InfoContext(ctx, "source created",
		slog.String("source_id", src.ID),
		slog.String("source_type", src.Type),
	)

	p.ebus.Publish(ctx, SourceConfigured{SourceID: src.ID, Action: SourceActionCreated})

	return src.ID, nil
}

// handleUpdateSource replaces the mutable settings of a source.
func (p *Pipeline) handleUpdateSource(ctx context.Context, cmd UpdateSource) (any, error) {
	sealed, sealErr := p.sealCredentials(cmd.Credentials)
	if sealErr != nil {
		return nil, sealErr
	}

	src, mutErr := p.mutateSource(ctx, cmd.SourceID, func(s *source.Source) error {
		if validateErr := p.validateSourceConfig(s.Type, cmd.Config); validateErr != nil {
			return validateErr
		}

		return s.Update(cmd.Name, cmd.Config, sealed)
	})
	if mutErr != nil {
		return nil, mutErr
	}

	p.ebus.Publish(ctx, SourceConfigured{SourceID: src.ID, Action: SourceActionUpdated})

	return nil, nil
}

// handleDeleteSource soft-deactivates a source; deleting an already
// inactive source is a no-op.
func (p *Pipeline) handleDeleteSource(ctx context.Context, cmd DeleteSource) (any, error) {
	reason := cmd.Reason
	if reason == "" {
		reason = defaultDeleteReason
	}

	src, mutErr := p.mutateSource(ctx, cmd.SourceID, func(s *source.Source) error {
		if !s.Disable(reason) {
			return errUnchanged
		}

		return nil
	})
	if mutErr != nil {
		return nil, mutErr
	}

	p.ebus.Publish(ctx, SourceConfigured{SourceID: src.ID, Action: SourceActionDeleted})

	return nil, nil
}

// handleUpdateSourceHealth records one job outcome and raises the latched
// unhealthy alert when the counters cross a threshold.
func (p *Pipeline) handleUpdateSourceHealth(ctx context.Context, cmd UpdateSourceHealth) (any, error) {
	var crossed bool

	src, mutErr := p.mutateSource(ctx, cmd.SourceID, func(s *source.Source) error {
		if cmd.Success {
			s.RecordSuccess(p.now())
		} else {
			s.RecordFailure(p.now())
		}

		crossed = s.LatchUnhealthy(p.thresholds)

		return nil
	})
	if mutErr != nil {
		return nil, mutErr
	}

	if !crossed {
		return nil, nil
	}

	p.logger.WarnContext(ctx, "source health threshold crossed",
		slog.String("source_id", src.ID),
		slog.Float64("success_rate", src.Health.SuccessRate),
		slog.Int("consecutive_failures", src.Health.ConsecutiveFailures),
	)

	p.ebus.Publish(ctx, SourceUnhealthy{
		SourceID:            src.ID,
		FailureRate:         100 - src.Health.SuccessRate,
		ConsecutiveFailures: src.Health.ConsecutiveFailures,
		DetectedAt:          p.now(),
	})

	return nil, nil
}

// onSourceUnhealthy auto-disables the source behind a latched crossing.
// Lock conflicts retry under the shared policy; exhaustion is logged by
// the bus and the latch keeps the alert from re-firing.
func (p *Pipeline) onSourceUnhealthy(ctx context.Context, evt SourceUnhealthy) error {
	var disabled bool

	src, mutErr := p.mutateSource(ctx, evt.SourceID, func(s *source.Source) error {
		disabled = s.Disable(autoDisableReason)
		if !disabled {
			return errUnchanged
		}

		return nil
	})
	if mutErr != nil {
		return mutErr
	}

	if disabled {
		p.logger.WarnContext(ctx, "source auto-disabled",
			slog.String("source_id", src.ID),
			slog.Float64("failure_rate", evt.FailureRate),
		)
	}

	return nil
}

// validateSourceConfig checks the config against the adapter's JSON
// schema. Types without a registered adapter pass unchecked: their
// fetchers live outside this repo.
func (p *Pipeline) validateSourceConfig(sourceType string, config map[string]any) error {
	if p.registry == nil {
		return nil
	}

	if _, getErr := p.registry.Get(sourceType); getErr != nil {
		return nil
	}

	validation, validateErr := p.registry.ValidateConfig(sourceType, config)
	if validateErr != nil {
		return validateErr
	}

	if !validation.IsValid {
		return fault.Newf(fault.KindValidation, "source config rejected: %s", strings.Join(validation.Errors, "; "))
	}

	return nil
}

// sealCredentials encrypts plaintext credentials with the configured key.
func (p *Pipeline) sealCredentials(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	if p.keys == nil {
		return "", fault.New(fault.KindValidation, "credentials given but no sealing key configured")
	}

	key, keyErr := p.keys.Key()
	if keyErr != nil {
		return "", keyErr
	}

	sealed, sealErr := crypto.Seal(plaintext, key)
	if sealErr != nil {
		return "", sealErr
	}

	return sealed, nil
}
