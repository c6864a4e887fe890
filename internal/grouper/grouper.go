// Package grouper clusters raw recorded events into actions: coherent,
// single-intent groups that render as one step each.
package grouper

import (
	"strings"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

// MergeWindowMs is the maximum gap between two events that may share an
// action. Wider gaps mean the user moved on.
const MergeWindowMs = 2000

// Priority scores for picking a group's primary event. Later, more specific
// interactions (typing into a field) are better evidence of intent than
// earlier exploratory clicks on the same control.
const (
	scoreFill          = 400
	scoreClickTestID   = 300
	scoreClickSpecific = 200
	scoreSubmit        = 150
	scoreNavigate      = 100
	scoreClickGeneric  = 50
	scoreOther         = 0
)

// Group partitions the session's events into actions. Every event index
// lands in exactly one action; grouping never fails and never drops events.
func Group(session *models.Session) []models.Action {
	if session == nil || len(session.Events) == 0 {
		return nil
	}

	var groups [][]int
	current := []int{0}
	for i := 1; i < len(session.Events); i++ {
		last := session.Events[current[len(current)-1]]
		if canMerge(last, session.Events[i]) {
			current = append(current, i)
			continue
		}
		groups = append(groups, current)
		current = []int{i}
	}
	groups = append(groups, current)

	actions := make([]models.Action, 0, len(groups))
	for _, indices := range groups {
		actions = append(actions, models.Action{
			EventIndices: indices,
			Primary:      pickPrimary(session.Events, indices),
		})
	}
	return actions
}

// canMerge decides whether next can join the group whose last event is last.
func canMerge(last, next models.Event) bool {
	if next.TMs-last.TMs > MergeWindowMs {
		return false
	}

	lastNav := last.Kind == models.KindNavigate
	nextNav := next.Kind == models.KindNavigate
	if lastNav != nextNav {
		return false
	}
	if lastNav {
		// Navigations only collapse when they hit the same route;
		// distinct routes are distinct steps no matter how fast.
		return routeKey(last) == routeKey(next)
	}

	lastHint := NormalizeHint(last.Hint())
	nextHint := NormalizeHint(next.Hint())

	switch {
	case lastHint != "" && lastHint == nextHint:
		return true
	case last.Kind == models.KindClick && next.Kind == models.KindSubmit:
		return true
	case last.Kind == models.KindClick && next.Kind == models.KindClick &&
		IsGenericHint(lastHint) && !IsGenericHint(nextHint):
		return true
	}
	return false
}

// pickPrimary returns the event index with the highest priority score, ties
// broken by recording order.
func pickPrimary(events []models.Event, indices []int) int {
	best := indices[0]
	bestScore := Score(events[best])
	for _, idx := range indices[1:] {
		if s := Score(events[idx]); s > bestScore {
			best, bestScore = idx, s
		}
	}
	return best
}

// Score returns the static priority of an event for primary selection.
func Score(e models.Event) int {
	switch e.Kind {
	case models.KindFill:
		return scoreFill
	case models.KindClick:
		hint := NormalizeHint(e.Hint())
		switch {
		case strings.Contains(hint, "data-testid"):
			return scoreClickTestID
		case !IsGenericHint(hint):
			return scoreClickSpecific
		default:
			return scoreClickGeneric
		}
	case models.KindSubmit:
		return scoreSubmit
	case models.KindNavigate:
		return scoreNavigate
	}
	return scoreOther
}

var bareTags = map[string]bool{
	"div":  true,
	"main": true,
	"body": true,
	"html": true,
}

// IsGenericHint reports whether a normalized hint says nothing useful about
// the element: empty, a bare container tag, or free of any attribute, id,
// class or role qualifier.
func IsGenericHint(hint string) bool {
	if hint == "" {
		return true
	}
	if bareTags[hint] {
		return true
	}
	return !strings.ContainsAny(hint, "[#.:=")
}

// NormalizeHint collapses whitespace runs and rewrites double quotes to
// single quotes inside bracket selectors so that hints captured with either
// quoting style compare equal.
func NormalizeHint(hint string) string {
	collapsed := strings.Join(strings.Fields(hint), " ")
	if !strings.Contains(collapsed, "[") {
		return collapsed
	}
	var b strings.Builder
	depth := 0
	for _, r := range collapsed {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case r == '"' && depth > 0:
			r = '\''
		}
		b.WriteRune(r)
	}
	return b.String()
}

// routeKey is the comparison key for navigate events.
func routeKey(e models.Event) string {
	if e.Route != "" {
		return e.Route
	}
	if e.Pathname != "" {
		if e.Fragment != "" {
			return e.Pathname + "#" + e.Fragment
		}
		return e.Pathname
	}
	return e.URL
}
