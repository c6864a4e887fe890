package models

import "time"

// StepStatus is the resolution outcome for one draft step.
type StepStatus string

const (
	StepResolved   StepStatus = "resolved"
	StepPartial    StepStatus = "partial"
	StepUnresolved StepStatus = "unresolved"
)

// Candidate is one catalog entry a reference may denote.
type Candidate struct {
	PageKey    string `json:"pageKey"`
	ElementKey string `json:"elementKey"`
	TestID     string `json:"testId"`
}

// ResolvedStep records what became of one draft mapping.
type ResolvedStep struct {
	DraftLine  int         `json:"draftLine"`
	Status     StepStatus  `json:"status"`
	StepText   string      `json:"stepText"`
	Confidence float64     `json:"confidence"`
	Chosen     *Candidate  `json:"chosen,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// Findings holds the IDs of findings raised while resolving this step.
	Findings []string `json:"findings,omitempty"`
}

// ResolvedSource names the artifacts a resolution run consumed.
type ResolvedSource struct {
	DraftFeaturePath string `json:"draftFeaturePath"`
	UIMapPath        string `json:"uiMapPath"`
	SessionPath      string `json:"sessionPath,omitempty"`
}

// ResolvedMetadata accompanies the resolved script.
type ResolvedMetadata struct {
	Version     int            `json:"version"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Source      ResolvedSource `json:"source"`
	Steps       []ResolvedStep `json:"steps"`
}

// Severity ranks a finding. Error sorts before Warn, Warn before Info.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// Rank returns the sort rank of the severity; unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarn:
		return 1
	case SeverityInfo:
		return 2
	}
	return 3
}

// Finding codes raised during resolution.
const (
	CodeRouteNotMapped      = "ROUTE_NOT_MAPPED"
	CodeTestIDNotFound      = "TESTID_NOT_FOUND"
	CodeAmbiguousMatch      = "AMBIGUOUS_MATCH"
	CodeCandidatesTruncated = "CANDIDATES_TRUNCATED"
	CodeKeyNotFound         = "KEY_NOT_FOUND"
)

// Finding is one diagnostic produced during resolution. The ID is assigned
// after all findings are collected and sorted; it is a pure function of the
// sorted finding set, never stored input.
type Finding struct {
	ID        string   `json:"id"`
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	DraftLine int      `json:"draftLine"`
	StepText  string   `json:"stepText"`
	Route     string   `json:"route,omitempty"`
	InputRef  string   `json:"inputRef,omitempty"`
}

// GapStats counts findings by severity.
type GapStats struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Total    int `json:"total"`
}

// UiGapsReport is the diagnostics artifact for one resolution run.
type UiGapsReport struct {
	Version     int       `json:"version"`
	SessionID   string    `json:"sessionId"`
	GeneratedAt time.Time `json:"generatedAt"`
	DraftPath   string    `json:"draftPath,omitempty"`
	UimapPath   string    `json:"uimapPath,omitempty"`
	Findings    []Finding `json:"findings"`
	Stats       GapStats  `json:"stats"`
}
