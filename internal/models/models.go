package models

import "time"

// EventKind tags a recorded browser interaction.
type EventKind string

const (
	KindNavigate   EventKind = "navigate"
	KindClick      EventKind = "click"
	KindFill       EventKind = "fill"
	KindSelect     EventKind = "select"
	KindSubmit     EventKind = "submit"
	KindToggle     EventKind = "toggle"
	KindModalOpen  EventKind = "modal_open"
	KindModalClose EventKind = "modal_close"
)

// ValidKinds is the closed set of kinds the recorder may emit.
var ValidKinds = map[EventKind]bool{
	KindNavigate:   true,
	KindClick:      true,
	KindFill:       true,
	KindSelect:     true,
	KindSubmit:     true,
	KindToggle:     true,
	KindModalOpen:  true,
	KindModalClose: true,
}

// Semantic reports whether the kind carries user intent on its own.
// A session with none of these is not worth drafting.
func (k EventKind) Semantic() bool {
	switch k {
	case KindClick, KindFill, KindSelect, KindSubmit:
		return true
	}
	return false
}

// Target describes the element an interaction hit, as captured in the page.
type Target struct {
	Hint       string            `json:"hint,omitempty"`
	TestID     string            `json:"testId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Event is one recorded interaction. TMs is milliseconds since session
// start; events are ordered by TMs by construction. Target and Value are
// present only for the kinds that produce them, the navigation fields only
// for navigate events.
type Event struct {
	TMs  int64     `json:"tMs"`
	Kind EventKind `json:"kind"`

	Target *Target `json:"target,omitempty"`
	Value  *string `json:"value,omitempty"`

	Route    string `json:"route,omitempty"`
	URL      string `json:"url,omitempty"`
	Pathname string `json:"pathname,omitempty"`
	Fragment string `json:"fragment,omitempty"`

	// WaitMs is the recorded gap since the previous event, when the
	// recorder captured one.
	WaitMs int64 `json:"waitMs,omitempty"`

	// RawScript carries recorder-side script payloads for interactions
	// the recorder could not classify further.
	RawScript string `json:"rawScript,omitempty"`
}

// Hint returns the captured element hint, or "" when there is none.
func (e Event) Hint() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.Hint
}

// Session is a complete recording, consumed read-only by the pipeline.
type Session struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Events    []Event   `json:"events"`
}
