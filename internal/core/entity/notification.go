package entity

// NotificationKind is the lifecycle transition a notification announces.
type NotificationKind string

const (
	KindAccepted  NotificationKind = "accepted"
	KindCompleted NotificationKind = "completed"
)

// Notification is one step-lifecycle message from the registry. Delivery is
// at-least-once and unordered.
//
// MultihopID and StepIndex identify the step directly when the source knows
// them; sources that only know the job id leave MultihopID empty.
type Notification struct {
	Kind       NotificationKind
	MultihopID string
	StepIndex  int
	JobID      string
}
