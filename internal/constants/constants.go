package constants

const (
	SessionStatusCreated   = "CREATED"
	SessionStatusRunning   = "RUNNING"
	SessionStatusPaused    = "PAUSED"
	SessionStatusEnded     = "ENDED"
	SessionStatusCancelled = "CANCELLED"
)

const (
	BlockStatusPlanned  = "PLANNED"
	BlockStatusActive   = "ACTIVE"
	BlockStatusExecuted = "EXECUTED"
)

const (
	QuestionTypeSingleChoice   = "SC"
	QuestionTypeMultipleChoice = "MC"
	QuestionTypeFree           = "FREE"
	QuestionTypeFreeRange      = "FREE_RANGE"
)

const (
	ResultsKindChoices  = "CHOICES"
	ResultsKindFreeText = "FREE_TEXT"
)

const (
	AnonymityFull    = "FULL"
	AnonymityPartial = "PARTIAL"
)

// Subscription channels.
const (
	ChannelConfusion = "confusion"
	ChannelFeedback  = "feedback"
)

// Signal event types pushed to subscribers.
const (
	EventConfusionAdded = "confusion_added"
	EventFeedbackAdded  = "feedback_added"
)

// Lifecycle events published to the message broker.
const (
	LifecycleSessionStarted   = "session.started"
	LifecycleSessionPaused    = "session.paused"
	LifecycleSessionResumed   = "session.resumed"
	LifecycleSessionEnded     = "session.ended"
	LifecycleSessionCancelled = "session.cancelled"
	LifecycleBlockActivated   = "block.activated"
)

const (
	ConfusionMin = -5
	ConfusionMax = 5

	MaxFeedbackLength = 500
	MaxFreeTextLength = 1000
)

// IsLive reports whether a session in the given status accepts participants.
func IsLive(status string) bool {
	return status == SessionStatusRunning || status == SessionStatusPaused
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(status string) bool {
	return status == SessionStatusEnded || status == SessionStatusCancelled
}
