package ingest

import (
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Command names routed through the command bus.
const (
	CmdScheduleJob        = "ScheduleJob"
	CmdStartJob           = "StartJob"
	CmdUpdateJobMetrics   = "UpdateJobMetrics"
	CmdCompleteJob        = "CompleteJob"
	CmdFailJob            = "FailJob"
	CmdCancelJob          = "CancelJob"
	CmdNormalizeContent   = "NormalizeContent"
	CmdValidateContent    = "ValidateContentQuality"
	CmdDetectDuplicate    = "DetectDuplicate"
	CmdSaveContentItem    = "SaveContentItem"
	CmdCreateSource       = "CreateSource"
	CmdUpdateSource       = "UpdateSource"
	CmdDeleteSource       = "DeleteSource"
	CmdUpdateSourceHealth = "UpdateSourceHealth"
)

// ScheduleJob creates a pending job for a source and registers it with the
// scheduler. A positive Every additionally registers a recurring schedule
// that spawns a fresh job per tick.
type ScheduleJob struct {
	SourceID string
	FireAt   time.Time
	Every    time.Duration
}

// CommandName implements bus.Command.
func (ScheduleJob) CommandName() string { return CmdScheduleJob }

// StartJob moves a pending job to running.
type StartJob struct {
	JobID string
}

// CommandName implements bus.Command.
func (StartJob) CommandName() string { return CmdStartJob }

// UpdateJobMetrics merges an additive metrics delta into a running job.
type UpdateJobMetrics struct {
	JobID string
	Delta job.Metrics
}

// CommandName implements bus.Command.
func (UpdateJobMetrics) CommandName() string { return CmdUpdateJobMetrics }

// CompleteJob moves a running job to completed.
type CompleteJob struct {
	JobID string
}

// CommandName implements bus.Command.
func (CompleteJob) CommandName() string { return CmdCompleteJob }

// FailJob moves a running job to failed, appending the fatal record.
type FailJob struct {
	JobID  string
	Record fault.ErrorRecord
}

// CommandName implements bus.Command.
func (FailJob) CommandName() string { return CmdFailJob }

// CancelJob withdraws a pending or running job and deregisters its
// schedule.
type CancelJob struct {
	JobID string
}

// CommandName implements bus.Command.
func (CancelJob) CommandName() string { return CmdCancelJob }

// NormalizeContent turns one collected raw item into its canonical
// normalized form, detects the language, and extracts asset tags.
type NormalizeContent struct {
	JobID      string
	SourceID   string
	RawContent string
	Metadata   content.Metadata
}

// CommandName implements bus.Command.
func (NormalizeContent) CommandName() string { return CmdNormalizeContent }

// ValidateContentQuality runs the pre-persistence filters over normalized
// content: length bounds, spam patterns, and the language allowlist.
type ValidateContentQuality struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
}

// CommandName implements bus.Command.
func (ValidateContentQuality) CommandName() string { return CmdValidateContent }

// DetectDuplicate checks the content hash against the store, consulting
// the advisory cache first.
type DetectDuplicate struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
}

// CommandName implements bus.Command.
func (DetectDuplicate) CommandName() string { return CmdDetectDuplicate }

// SaveContentItem persists one deduplicated content item.
type SaveContentItem struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
}

// CommandName implements bus.Command.
func (SaveContentItem) CommandName() string { return CmdSaveContentItem }

// CreateSource registers a new source configuration. Credentials arrive in
// plaintext and are sealed before persistence. An empty SourceID draws a
// fresh identifier.
type CreateSource struct {
	SourceID    string
	Type        string
	Name        string
	Config      map[string]any
	Credentials string
}

// CommandName implements bus.Command.
func (CreateSource) CommandName() string { return CmdCreateSource }

// UpdateSource replaces the mutable settings of a source. Empty
// Credentials keeps the stored ciphertext.
type UpdateSource struct {
	SourceID    string
	Name        string
	Config      map[string]any
	Credentials string
}

// CommandName implements bus.Command.
func (UpdateSource) CommandName() string { return CmdUpdateSource }

// DeleteSource soft-deactivates a source.
type DeleteSource struct {
	SourceID string
	Reason   string
}

// CommandName implements bus.Command.
func (DeleteSource) CommandName() string { return CmdDeleteSource }

// UpdateSourceHealth records one job outcome against the source's rolling
// health and raises the unhealthy alert on a threshold crossing.
type UpdateSourceHealth struct {
	SourceID string
	Success  bool
}

// CommandName implements bus.Command.
func (UpdateSourceHealth) CommandName() string { return CmdUpdateSourceHealth }
