package eventbus

// Event types published by alertd components.
const (
	PollStarted    = "poll.started"
	PollCompleted  = "poll.completed"
	PollFailed     = "poll.failed"
	PollDispatched = "poll.dispatched"
	PollSuppressed = "poll.suppressed"
	HistoryCleared = "poll.history_cleared"

	NotifierQueued  = "notifier.queued"
	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDropped = "notifier.dropped"

	ConfigApplied = "config.applied"
)
