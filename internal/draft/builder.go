// Package draft renders grouped actions as a literal acceptance-test draft:
// a Gherkin-style script plus the metadata the resolver needs to locate and
// rewrite each step.
package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vincentbai/browsetrace-scribe/internal/grouper"
	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

const (
	// LocaleMarker is the first line of every draft script.
	LocaleMarker = "# language: en"

	// EscapeHatchMarker prefixes raw-event comment blocks.
	EscapeHatchMarker = "# raw-event:"

	// InferenceConfidence is the fixed confidence recorded for every
	// heuristically inferred step. Resolution confidence is separate.
	InferenceConfidence = 0.7

	// WaitFloorMs is the smallest recorded gap worth an explicit wait
	// line; shorter gaps are recording noise.
	WaitFloorMs = 1000

	// rawSnapshotLimit caps the serialized escape-hatch payload.
	rawSnapshotLimit = 500

	truncationMarker = "...[truncated]"
)

// Warning codes surfaced in draft metadata.
const (
	WarnNoEvents         = "SESSION_EMPTY"
	WarnNoSemanticEvents = "SESSION_NO_SEMANTIC_EVENTS"
	WarnMalformedEvent   = "SESSION_MALFORMED_EVENT"
	WarnRawTruncated     = "RAW_EVENT_TRUNCATED"
)

const stepIndent = "    "

// Options tunes rendering. BaseURL, when set, is stripped from recorded
// navigation targets before route normalization.
type Options struct {
	BaseURL string
}

// renderStep produces the literal step text for a primary event, without
// indentation or connector rewriting. ok is false when the event has no
// literal phrasing and must fall back to the escape hatch.
func renderStep(e models.Event, opts Options) (string, bool) {
	switch e.Kind {
	case models.KindNavigate:
		return fmt.Sprintf("Given I am on page \"%s\"", NormalizeRoute(e, opts.BaseURL)), true
	case models.KindFill:
		hint := sanitize(grouper.NormalizeHint(e.Hint()))
		if hint == "" {
			return "", false
		}
		value := ""
		if e.Value != nil {
			value = sanitize(*e.Value)
		}
		return fmt.Sprintf("When I fill \"%s\" with \"%s\"", hint, value), true
	case models.KindClick, models.KindSubmit:
		hint := sanitize(grouper.NormalizeHint(e.Hint()))
		if hint == "" {
			return "", false
		}
		return fmt.Sprintf("When I click \"%s\"", hint), true
	}
	return "", false
}

// renderWait returns the explicit wait line for a recorded gap, or "" when
// the gap is below the floor. Seconds are floor-divided.
func renderWait(waitMs int64) string {
	if waitMs < WaitFloorMs {
		return ""
	}
	seconds := waitMs / 1000
	unit := "seconds"
	if seconds == 1 {
		unit = "second"
	}
	return fmt.Sprintf("When I wait %d %s", seconds, unit)
}

// rawSnapshot serializes an event for the escape hatch. truncated reports
// whether the payload was cut at the limit.
func rawSnapshot(e models.Event) (string, bool) {
	payload := map[string]any{"kind": e.Kind}
	if e.Target != nil {
		payload["target"] = e.Target
	}
	if e.Value != nil {
		payload["value"] = *e.Value
	}
	if e.RawScript != "" {
		payload["rawScript"] = e.RawScript
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshaling a map of plain values cannot fail; keep a stable
		// fallback anyway.
		data = []byte(fmt.Sprintf(`{"kind":%q}`, e.Kind))
	}
	snapshot := stripControl(string(data))
	if len(snapshot) > rawSnapshotLimit {
		return snapshot[:rawSnapshotLimit] + truncationMarker, true
	}
	return snapshot, false
}

// stripControl removes control characters without touching quotes, keeping
// the snapshot a single valid JSON line.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeRoute reduces a navigate event to the short route literal used in
// step text: the last *.html path segment plus fragment when present,
// otherwise the last path segment, otherwise "/".
func NormalizeRoute(e models.Event, baseURL string) string {
	target := e.Route
	if target == "" {
		target = e.URL
	}
	if target == "" {
		target = e.Pathname
	}
	if baseURL != "" {
		target = strings.TrimPrefix(target, baseURL)
	}
	// Drop scheme/host and query so only the path remains.
	if idx := strings.Index(target, "://"); idx >= 0 {
		rest := target[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			target = rest[slash:]
		} else {
			target = "/"
		}
	}
	if idx := strings.IndexAny(target, "?"); idx >= 0 {
		target = target[:idx]
	}
	fragment := e.Fragment
	if idx := strings.Index(target, "#"); idx >= 0 {
		if fragment == "" {
			fragment = target[idx+1:]
		}
		target = target[:idx]
	}

	segments := strings.Split(target, "/")
	route := ""
	for i := len(segments) - 1; i >= 0; i-- {
		if strings.HasSuffix(segments[i], ".html") {
			route = segments[i]
			break
		}
	}
	if route == "" {
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] != "" {
				route = segments[i]
				break
			}
		}
	}
	if route == "" {
		return sanitize("/")
	}
	if fragment != "" {
		route += "#" + fragment
	}
	return sanitize(route)
}

// sanitize strips control characters and converts embedded double quotes to
// single quotes so rendered lines survive quoted-substring extraction.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '"':
			b.WriteRune('\'')
		case r < 0x20 || r == 0x7f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
