package tracking

import "github.com/jcmexdev/multihop-creator/internal/core/entity"

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// NotificationOutcome classifies what the engine did with a notification.
type NotificationOutcome string

const (
	NotificationApplied   NotificationOutcome = "applied"
	NotificationDuplicate NotificationOutcome = "duplicate"
	NotificationForeign   NotificationOutcome = "foreign"
	NotificationInvalid   NotificationOutcome = "invalid"
)

// Observer receives engine lifecycle callbacks. Callbacks run outside the
// engine and session locks and must not block for long.
type Observer interface {
	SessionOpened(sessionID string)
	SessionSubmitted(sessionID, multihopID string)
	StepAdvanced(sessionID string, stepIndex int, status StepStatus)
	NotificationHandled(kind entity.NotificationKind, outcome NotificationOutcome)
	OutputFallback(sessionID string, stepIndex int, err error)
	SessionClosed(sessionID string, outcome Outcome)
	SubscriptionsChanged(active bool)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) SessionOpened(string)                                             {}
func (NopObserver) SessionSubmitted(string, string)                                  {}
func (NopObserver) StepAdvanced(string, int, StepStatus)                             {}
func (NopObserver) NotificationHandled(entity.NotificationKind, NotificationOutcome) {}
func (NopObserver) OutputFallback(string, int, error)                                {}
func (NopObserver) SessionClosed(string, Outcome)                                    {}
func (NopObserver) SubscriptionsChanged(bool)                                        {}

type multiObserver []Observer

// Observers fans callbacks out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) SessionOpened(id string) {
	for _, o := range m {
		o.SessionOpened(id)
	}
}

func (m multiObserver) SessionSubmitted(id, multihopID string) {
	for _, o := range m {
		o.SessionSubmitted(id, multihopID)
	}
}

func (m multiObserver) StepAdvanced(id string, idx int, st StepStatus) {
	for _, o := range m {
		o.StepAdvanced(id, idx, st)
	}
}

func (m multiObserver) NotificationHandled(kind entity.NotificationKind, outcome NotificationOutcome) {
	for _, o := range m {
		o.NotificationHandled(kind, outcome)
	}
}

func (m multiObserver) OutputFallback(id string, idx int, err error) {
	for _, o := range m {
		o.OutputFallback(id, idx, err)
	}
}

func (m multiObserver) SessionClosed(id string, outcome Outcome) {
	for _, o := range m {
		o.SessionClosed(id, outcome)
	}
}

func (m multiObserver) SubscriptionsChanged(active bool) {
	for _, o := range m {
		o.SubscriptionsChanged(active)
	}
}
