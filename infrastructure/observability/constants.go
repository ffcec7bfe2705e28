package observability

const MetricPrefix = "stream_digest"

// Metric names
const (
	RunsTotal   = MetricPrefix + ".runs.total"
	RunDuration = MetricPrefix + ".runs.duration"
	RunsSkipped = MetricPrefix + ".runs.skipped_total"

	EventsTotal   = MetricPrefix + ".events.total"
	EmailsTotal   = MetricPrefix + ".emails.total"
	SchedulerJobs = MetricPrefix + ".scheduler.jobs"

	NATSMessagesTotal = MetricPrefix + ".nats.messages_total"

	DatabaseQueryDuration = MetricPrefix + ".database.query_duration"
)

// Label keys
const (
	LabelType       = "type"
	LabelStatus     = "status"
	LabelStage      = "stage"
	LabelEventType  = "event_type"
	LabelDirection  = "direction"
	LabelRepository = "repository"
	LabelMethod     = "method"
)

// Label values
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"

	EventStageFetched = "fetched"
	EventStageKept    = "kept"

	NATSDirectionPublished = "published"
	NATSDirectionReceived  = "received"
)
