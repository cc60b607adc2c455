// Package source defines the SourceConfiguration aggregate: the settings
// and credentials of one external content source plus its rolling health.
// Health crossings are latched so one degradation raises exactly one alert,
// and deactivation is always soft.
package source

import (
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Default health thresholds.
const (
	// DefaultMinSuccessRate is the success-rate floor in percent. Sources
	// below it (with enough history) are unhealthy.
	DefaultMinSuccessRate = 50.0

	// DefaultMinJobs is how much history the rate check needs before it
	// may fire.
	DefaultMinJobs = 10

	// DefaultMaxConsecutiveFailures trips the health check regardless of
	// the overall rate.
	DefaultMaxConsecutiveFailures = 5
)

// Thresholds parameterizes the unhealthy predicate.
type Thresholds struct {
	// MinSuccessRate is the percent floor for the rate check.
	MinSuccessRate float64

	// MinJobs gates the rate check on run history.
	MinJobs int64

	// MaxConsecutiveFailures trips the check on a failure streak.
	MaxConsecutiveFailures int
}

// DefaultThresholds returns the standard health tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:         DefaultMinSuccessRate,
		MinJobs:                DefaultMinJobs,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}
}

// Health tracks the rolling outcome counters of a source.
type Health struct {
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Successes           int64      `json:"successes"`
	TotalJobs           int64      `json:"totalJobs"`
	SuccessRate         float64    `json:"successRate"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
}

// recompute refreshes the derived success rate.
func (h *Health) recompute() {
	if h.TotalJobs == 0 {
		h.SuccessRate = 100.0

		return
	}

	h.SuccessRate = float64(h.Successes) / float64(h.TotalJobs) * 100.0
}

// Source is the SourceConfiguration aggregate root.
type Source struct {
	ID          string
	Type        string
	Name        string
	Config      map[string]any
	Credentials string
	IsActive    bool
	Health      Health

	// DisabledReason explains a soft deactivation.
	DisabledReason string

	// HealthAlerted latches the unhealthy crossing so repeated failures
	// past the threshold raise one alert, not a storm.
	HealthAlerted bool

	Version int64
}

// New creates an active source at version 0.
func New(id, sourceType, name string, config map[string]any, credentials string) (*Source, error) {
	if id == "" {
		return nil, fault.New(fault.KindValidation, "source id must not be empty")
	}

	if sourceType == "" {
		return nil, fault.New(fault.KindValidation, "source type must not be empty")
	}

	if name == "" {
		return nil, fault.New(fault.KindValidation, "source name must not be empty")
	}

	s := &Source{
		ID:          id,
		Type:        sourceType,
		Name:        name,
		Config:      config,
		Credentials: credentials,
		IsActive:    true,
		Version:     0,
	}
	s.Health.recompute()

	return s, nil
}

// RecordSuccess counts a successful job: the failure streak resets to zero
// and the success rate is refreshed.
func (s *Source) RecordSuccess(now time.Time) {
	at := now.UTC()

	s.Health.ConsecutiveFailures = 0
	s.Health.Successes++
	s.Health.TotalJobs++
	s.Health.LastSuccessAt = &at
	s.Health.recompute()
	s.Version++
}

// RecordFailure counts a failed job: the failure streak grows by one and
// the success rate is refreshed.
func (s *Source) RecordFailure(now time.Time) {
	at := now.UTC()

	s.Health.ConsecutiveFailures++
	s.Health.TotalJobs++
	s.Health.LastFailureAt = &at
	s.Health.recompute()
	s.Version++
}

// IsUnhealthy reports whether the source crosses either failure threshold:
// a low success rate over enough history, or a long failure streak.
func (s *Source) IsUnhealthy(th Thresholds) bool {
	rateTripped := s.Health.SuccessRate < th.MinSuccessRate && s.Health.TotalJobs >= th.MinJobs
	streakTripped := s.Health.ConsecutiveFailures >= th.MaxConsecutiveFailures

	return rateTripped || streakTripped
}

// LatchUnhealthy reports a health crossing exactly once. It returns true
// only when the source is unhealthy and no alert is latched yet; recovery
// (a healthy observation) clears the latch so the next degradation alerts
// again. The flag does not bump the version on its own: it always changes
// inside the same load-save cycle as the RecordSuccess or RecordFailure
// call that moved the health counters.
func (s *Source) LatchUnhealthy(th Thresholds) bool {
	if !s.IsUnhealthy(th) {
		s.HealthAlerted = false

		return false
	}

	if s.HealthAlerted {
		return false
	}

	s.HealthAlerted = true

	return true
}

// Disable soft-deactivates the source. It returns true when the call
// changed state; disabling an inactive source is a no-op.
func (s *Source) Disable(reason string) bool {
	if !s.IsActive {
		return false
	}

	s.IsActive = false
	s.DisabledReason = reason
	s.Version++

	return true
}

// Enable reactivates a disabled source.
func (s *Source) Enable() bool {
	if s.IsActive {
		return false
	}

	s.IsActive = true
	s.DisabledReason = ""
	s.Version++

	return true
}

// Update replaces the mutable settings of the source.
func (s *Source) Update(name string, config map[string]any, credentials string) error {
	if name == "" {
		return fault.New(fault.KindValidation, "source name must not be empty")
	}

	s.Name = name
	s.Config = config

	if credentials != "" {
		s.Credentials = credentials
	}

	s.Version++

	return nil
}
