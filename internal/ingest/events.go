package ingest

import (
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
	"github.com/Sumatoshi-tech/newsfang/internal/domain/job"
	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Event names published on the event bus.
const (
	EvtJobScheduled      = "JobScheduled"
	EvtJobStarted        = "JobStarted"
	EvtJobCompleted      = "JobCompleted"
	EvtJobFailed         = "JobFailed"
	EvtJobCancelled      = "JobCancelled"
	EvtContentCollected  = "ContentCollected"
	EvtContentNormalized = "ContentNormalized"
	EvtContentValidated  = "ContentQualityValidated"
	EvtValidationFailed  = "ContentValidationFailed"
	EvtDeduplicationDone = "ContentDeduplicationChecked"
	EvtContentIngested   = "ContentIngested"
	EvtSourceConfigured  = "SourceConfigured"
	EvtSourceUnhealthy   = "SourceUnhealthy"
)

// JobScheduled announces a freshly created pending job.
type JobScheduled struct {
	JobID    string
	SourceID string
	FireAt   time.Time
	Every    time.Duration
}

// EventName implements bus.Event.
func (JobScheduled) EventName() string { return EvtJobScheduled }

// JobStarted announces a job moving to running; the fetch glue reacts to it.
type JobStarted struct {
	JobID    string
	SourceID string
}

// EventName implements bus.Event.
func (JobStarted) EventName() string { return EvtJobStarted }

// JobCompleted announces a successful run with its final metrics.
type JobCompleted struct {
	JobID    string
	SourceID string
	Metrics  job.Metrics
}

// EventName implements bus.Event.
func (JobCompleted) EventName() string { return EvtJobCompleted }

// JobFailed announces a run that ended in an unrecoverable error.
type JobFailed struct {
	JobID    string
	SourceID string
	Record   fault.ErrorRecord
}

// EventName implements bus.Event.
func (JobFailed) EventName() string { return EvtJobFailed }

// JobCancelled announces a withdrawn job.
type JobCancelled struct {
	JobID    string
	SourceID string
}

// EventName implements bus.Event.
func (JobCancelled) EventName() string { return EvtJobCancelled }

// ContentCollected carries one raw item fetched from a source.
type ContentCollected struct {
	JobID       string
	SourceID    string
	RawContent  string
	Metadata    content.Metadata
	CollectedAt time.Time
}

// EventName implements bus.Event.
func (ContentCollected) EventName() string { return EvtContentCollected }

// ContentNormalized carries the canonical form of one item plus the
// derived hash, language, and asset tags.
type ContentNormalized struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
}

// EventName implements bus.Event.
func (ContentNormalized) EventName() string { return EvtContentNormalized }

// ContentQualityValidated carries an item that passed the pre-persistence
// filters.
type ContentQualityValidated struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
}

// EventName implements bus.Event.
func (ContentQualityValidated) EventName() string { return EvtContentValidated }

// ContentValidationFailed announces an item dropped by the filters.
type ContentValidationFailed struct {
	JobID    string
	SourceID string
	Reason   string
}

// EventName implements bus.Event.
func (ContentValidationFailed) EventName() string { return EvtValidationFailed }

// ContentDeduplicationChecked reports the duplicate verdict for one item.
type ContentDeduplicationChecked struct {
	JobID             string
	SourceID          string
	RawContent        string
	NormalizedContent string
	ContentHash       string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
	Duplicate         bool
}

// EventName implements bus.Event.
func (ContentDeduplicationChecked) EventName() string { return EvtDeduplicationDone }

// ContentIngested announces one persisted content item. The payload is
// rich enough for downstream refinement to start without a read-back.
type ContentIngested struct {
	JobID             string
	ContentID         string
	SourceID          string
	ContentHash       string
	NormalizedContent string
	Metadata          content.Metadata
	AssetTags         []content.AssetTag
	PersistedAt       time.Time
}

// EventName implements bus.Event.
func (ContentIngested) EventName() string { return EvtContentIngested }

// Source configuration actions carried by SourceConfigured.
const (
	SourceActionCreated = "created"
	SourceActionUpdated = "updated"
	SourceActionDeleted = "deleted"
)

// SourceConfigured announces a source lifecycle change.
type SourceConfigured struct {
	SourceID string
	Action   string
}

// EventName implements bus.Event.
func (SourceConfigured) EventName() string { return EvtSourceConfigured }

// SourceUnhealthy announces a latched health threshold crossing.
type SourceUnhealthy struct {
	SourceID            string
	FailureRate         float64
	ConsecutiveFailures int
	DetectedAt          time.Time
}

// EventName implements bus.Event.
func (SourceUnhealthy) EventName() string { return EvtSourceUnhealthy }
