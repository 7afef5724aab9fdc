package tracking

// EventType names a progress event on the wire.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventDecomposing     EventType = "decomposing"
	EventProgress        EventType = "progress"
	EventMultihopCreated EventType = "multihop_created"
	EventJobCreated      EventType = "job_created"
	EventJobAccepted     EventType = "job_accepted"
	EventJobCompleted    EventType = "job_completed"
	EventAllComplete     EventType = "all_complete"
	EventError           EventType = "error"
)

// Event is a typed message pushed to a session's listener. Concrete events
// marshal to JSON with their type in the "type" field.
type Event interface {
	EventType() EventType
}

type Connected struct {
	Type       EventType `json:"type"`
	TrackingID string    `json:"trackingId"`
}

type Decomposing struct {
	Type        EventType `json:"type"`
	Instruction string    `json:"instruction"`
}

type Progress struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type MultihopCreated struct {
	Type       EventType `json:"type"`
	MultihopID string    `json:"multihopId"`
}

type JobCreated struct {
	Type        EventType `json:"type"`
	JobID       string    `json:"jobId"`
	StepIndex   int       `json:"stepIndex"`
	Description string    `json:"description"`
}

type JobAccepted struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"jobId"`
	StepIndex int       `json:"stepIndex"`
	Executor  string    `json:"executor"`
}

type JobCompleted struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"jobId"`
	StepIndex int       `json:"stepIndex"`
	OutputURL string    `json:"outputUrl"`
}

type AllComplete struct {
	Type    EventType `json:"type"`
	Outputs []string  `json:"outputs"`
}

type Error struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func (e Connected) EventType() EventType       { return EventConnected }
func (e Decomposing) EventType() EventType     { return EventDecomposing }
func (e Progress) EventType() EventType        { return EventProgress }
func (e MultihopCreated) EventType() EventType { return EventMultihopCreated }
func (e JobCreated) EventType() EventType      { return EventJobCreated }
func (e JobAccepted) EventType() EventType     { return EventJobAccepted }
func (e JobCompleted) EventType() EventType    { return EventJobCompleted }
func (e AllComplete) EventType() EventType     { return EventAllComplete }
func (e Error) EventType() EventType           { return EventError }

func NewConnected(trackingID string) Connected {
	return Connected{Type: EventConnected, TrackingID: trackingID}
}

func NewDecomposing(instruction string) Decomposing {
	return Decomposing{Type: EventDecomposing, Instruction: instruction}
}

func NewProgress(message string) Progress {
	return Progress{Type: EventProgress, Message: message}
}

func NewMultihopCreated(multihopID string) MultihopCreated {
	return MultihopCreated{Type: EventMultihopCreated, MultihopID: multihopID}
}

func NewJobCreated(jobID string, stepIndex int, description string) JobCreated {
	return JobCreated{Type: EventJobCreated, JobID: jobID, StepIndex: stepIndex, Description: description}
}

func NewJobAccepted(jobID string, stepIndex int, executor string) JobAccepted {
	return JobAccepted{Type: EventJobAccepted, JobID: jobID, StepIndex: stepIndex, Executor: executor}
}

func NewJobCompleted(jobID string, stepIndex int, outputURL string) JobCompleted {
	return JobCompleted{Type: EventJobCompleted, JobID: jobID, StepIndex: stepIndex, OutputURL: outputURL}
}

func NewAllComplete(outputs []string) AllComplete {
	return AllComplete{Type: EventAllComplete, Outputs: outputs}
}

func NewError(message string) Error {
	return Error{Type: EventError, Message: message}
}
