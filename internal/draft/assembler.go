package draft

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vincentbai/browsetrace-scribe/internal/grouper"
	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

// Result is one drafting run. Script is empty when the session failed the
// sanity gate; Metadata is always populated.
type Result struct {
	Script   string
	Metadata models.DraftMetadata
	Actions  []models.Action
}

// Build groups the session, renders the draft script and produces its
// metadata. The only error is a nil session, which is a caller bug.
func Build(session *models.Session, opts Options) (*Result, error) {
	if session == nil {
		return nil, fmt.Errorf("draft: session must not be nil")
	}

	if warnings := sanityCheck(session); len(warnings) > 0 {
		return &Result{
			Metadata: models.DraftMetadata{
				SessionID:   session.SessionID,
				InputStatus: models.InputInvalid,
				GeneratedAt: time.Now().UTC(),
				EventsCount: len(session.Events),
				Warnings:    warnings,
				Mappings:    []models.DraftMapping{},
			},
		}, nil
	}

	actions := grouper.Group(session)
	actions = restoreNavigates(session, actions)

	type renderedLine struct {
		text        string
		actionIndex int // -1 for non-step lines
		eventIndex  int
		isStep      bool
	}

	warnings := []string{}
	lines := []renderedLine{
		{text: LocaleMarker, actionIndex: -1},
		{text: "", actionIndex: -1},
		{text: "Feature: Recorded session " + session.SessionID, actionIndex: -1},
		{text: "", actionIndex: -1},
		{text: "  Scenario: Recorded user journey", actionIndex: -1},
	}

	escapeHatchCount := 0
	for actionIndex, action := range actions {
		primary := session.Events[action.Primary]

		stepText, ok := renderStep(primary, opts)
		if !ok {
			snapshot, truncated := rawSnapshot(primary)
			if truncated {
				warnings = append(warnings, WarnRawTruncated)
			}
			lines = append(lines, renderedLine{
				text:        stepIndent + EscapeHatchMarker + " " + snapshot,
				actionIndex: -1,
			})
			escapeHatchCount++
			continue
		}

		if wait := renderWait(primary.WaitMs); wait != "" {
			lines = append(lines, renderedLine{
				text:        stepIndent + wait,
				actionIndex: -1,
				isStep:      true,
			})
		}
		lines = append(lines, renderedLine{
			text:        stepIndent + stepText,
			actionIndex: actionIndex,
			eventIndex:  action.Primary,
			isStep:      true,
		})
	}

	// Consecutive steps repeating a keyword read better with a connector.
	// Cosmetic only; done before mappings are recorded so metadata text
	// matches the script verbatim.
	previousKeyword := ""
	for i := range lines {
		if !lines[i].isStep {
			previousKeyword = ""
			continue
		}
		keyword := stepKeyword(lines[i].text)
		if keyword != "" && keyword == previousKeyword {
			trimmed := strings.TrimPrefix(strings.TrimLeft(lines[i].text, " "), keyword)
			lines[i].text = stepIndent + "And" + trimmed
		}
		previousKeyword = keyword
	}

	mappings := []models.DraftMapping{}
	var b strings.Builder
	for i, line := range lines {
		b.WriteString(line.text)
		b.WriteString("\n")
		if line.actionIndex >= 0 {
			mappings = append(mappings, models.DraftMapping{
				EventIndex:  line.eventIndex,
				ActionIndex: line.actionIndex,
				DraftLine:   i + 1,
				Confidence:  InferenceConfidence,
			})
		}
	}

	return &Result{
		Script:  b.String(),
		Actions: actions,
		Metadata: models.DraftMetadata{
			SessionID:          session.SessionID,
			InputStatus:        models.InputOK,
			GeneratedAt:        time.Now().UTC(),
			EventsCount:        len(session.Events),
			ActionsCount:       len(actions),
			StepsInferredCount: len(mappings),
			EscapeHatchCount:   escapeHatchCount,
			Warnings:           warnings,
			Mappings:           mappings,
		},
	}, nil
}

// sanityCheck gates unusable sessions before any drafting effort is spent.
func sanityCheck(session *models.Session) []string {
	var warnings []string
	if len(session.Events) == 0 {
		return append(warnings, WarnNoEvents)
	}
	semantic := false
	for i, e := range session.Events {
		if e.Kind == "" || e.TMs < 0 {
			warnings = append(warnings, fmt.Sprintf("%s: event %d", WarnMalformedEvent, i))
		}
		if e.Kind.Semantic() {
			semantic = true
		}
	}
	if !semantic {
		warnings = append(warnings, WarnNoSemanticEvents)
	}
	return warnings
}

// restoreNavigates guarantees that every navigate event sits in an action
// whose primary is a navigate, inserting synthetic single-event actions in
// event order for any index grouping absorbed into a non-navigate action.
func restoreNavigates(session *models.Session, actions []models.Action) []models.Action {
	var missing []int
	for i, e := range session.Events {
		if e.Kind != models.KindNavigate {
			continue
		}
		represented := false
		for _, action := range actions {
			if session.Events[action.Primary].Kind != models.KindNavigate {
				continue
			}
			for _, idx := range action.EventIndices {
				if idx == i {
					represented = true
					break
				}
			}
			if represented {
				break
			}
		}
		if !represented {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return actions
	}

	for _, idx := range missing {
		actions = append(actions, models.Action{
			EventIndices: []int{idx},
			Primary:      idx,
			Synthetic:    true,
		})
	}
	sort.SliceStable(actions, func(a, b int) bool {
		return actions[a].EventIndices[0] < actions[b].EventIndices[0]
	})
	return actions
}

// stepKeyword extracts the leading Gherkin keyword of a rendered step line.
func stepKeyword(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if idx := strings.Index(trimmed, " "); idx > 0 {
		return trimmed[:idx]
	}
	return ""
}
