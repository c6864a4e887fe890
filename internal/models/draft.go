package models

import "time"

// Action is a group of event indices collapsed into one output step. It
// borrows events from the session by index and is never mutated after the
// grouper produces it.
type Action struct {
	// EventIndices are session event indices in recording order.
	EventIndices []int
	// Primary is the session index of the event that best evidences the
	// user's intent within the group.
	Primary int
	// Synthetic marks actions the assembler inserted to keep every
	// navigate event represented in the output.
	Synthetic bool
}

// InputStatus classifies a session at the drafting gate.
type InputStatus string

const (
	InputOK      InputStatus = "ok"
	InputInvalid InputStatus = "invalid"
)

// DraftMapping ties one rendered step back to the event it came from.
// DraftLine is 1-based into the draft script.
type DraftMapping struct {
	EventIndex  int     `json:"eventIndex"`
	ActionIndex int     `json:"actionIndex"`
	DraftLine   int     `json:"draftLine"`
	Confidence  float64 `json:"confidence"`
}

// DraftMetadata accompanies the draft script. When InputStatus is invalid
// no script exists and only Warnings carry information.
type DraftMetadata struct {
	SessionID          string         `json:"sessionId"`
	InputStatus        InputStatus    `json:"inputStatus"`
	GeneratedAt        time.Time      `json:"generatedAt"`
	EventsCount        int            `json:"eventsCount"`
	ActionsCount       int            `json:"actionsCount"`
	StepsInferredCount int            `json:"stepsInferredCount"`
	EscapeHatchCount   int            `json:"escapeHatchCount"`
	Warnings           []string       `json:"warnings"`
	Mappings           []DraftMapping `json:"mappings"`
}
