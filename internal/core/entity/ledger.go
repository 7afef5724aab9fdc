package entity

// LedgerEventName identifies a registry event decoded from a confirmation.
type LedgerEventName string

const (
	EventCreatedMultihop LedgerEventName = "CreatedMultihopJob"
	EventCreatedJob      LedgerEventName = "CreatedJob"
	EventAcceptedJob     LedgerEventName = "AcceptedJob"
	EventCompletedJob    LedgerEventName = "CompletedJob"
)

// LedgerEvent is a single decoded registry event, in emission order.
type LedgerEvent struct {
	Name LedgerEventName
	// ID is the multihop id for EventCreatedMultihop and the job id otherwise.
	ID string
	// StepIndex is the explicit position of a created job when the registry
	// reports one, or -1.
	StepIndex int
}

// Receipt is the on-ledger confirmation of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Events      []LedgerEvent
}

// Submission is the result of a confirmed multihop submission.
type Submission struct {
	TxHash     string
	MultihopID string
	StepIDs    []string
}
