// Package resolver rewrites a draft script's literal element and page
// references to canonical UI-map keys, scoring each match and reporting
// every reference it could not pin down.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
	"github.com/vincentbai/browsetrace-scribe/internal/uimap"
)

// MetadataVersion tags the resolved-metadata artifact shape.
const MetadataVersion = 1

// ReportVersion tags the diagnostics-report artifact shape.
const ReportVersion = 1

// DefaultMaxCandidates bounds candidate lists when the caller does not.
const DefaultMaxCandidates = 5

// navPhrase marks a navigation step in rendered text.
const navPhrase = "I am on page"

var testIDPattern = regexp.MustCompile(`\[data-testid=['"]([^'"]+)['"]\]`)

// Options configures a resolution run. The path fields are recorded in the
// output artifacts only; they are not opened here.
type Options struct {
	MaxCandidates int
	DraftPath     string
	UIMapPath     string
	SessionPath   string
}

// Result is one resolution run.
type Result struct {
	Metadata models.ResolvedMetadata
	Report   models.UiGapsReport
	Script   string
}

// pendingFinding is a finding awaiting its post-sort ID, remembering which
// step raised it.
type pendingFinding struct {
	finding models.Finding
	step    int
}

// Resolve processes every draft mapping in ascending draft-line order.
// Resolution never fails on data; the only errors are nil or inconsistent
// required inputs, which are caller bugs. The session is optional: without
// it, test-id recovery is unavailable and affected steps fall through to
// KEY_NOT_FOUND.
func Resolve(draftText string, meta *models.DraftMetadata, catalog *uimap.Map, session *models.Session, opts Options) (*Result, error) {
	if meta == nil {
		return nil, fmt.Errorf("resolver: draft metadata must not be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("resolver: ui map must not be nil")
	}
	if draftText == "" {
		return nil, fmt.Errorf("resolver: draft script must not be empty")
	}
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	lines := strings.Split(strings.TrimSuffix(draftText, "\n"), "\n")

	mappings := append([]models.DraftMapping(nil), meta.Mappings...)
	sort.SliceStable(mappings, func(a, b int) bool {
		return mappings[a].DraftLine < mappings[b].DraftLine
	})

	steps := make([]models.ResolvedStep, 0, len(mappings))
	var pending []pendingFinding
	rewrites := map[int]string{} // draft line -> replacement for first quoted substring

	for _, mapping := range mappings {
		if mapping.DraftLine < 1 || mapping.DraftLine > len(lines) {
			return nil, fmt.Errorf("resolver: mapping draft line %d outside script", mapping.DraftLine)
		}
		stepText := lines[mapping.DraftLine-1]
		step := models.ResolvedStep{
			DraftLine: mapping.DraftLine,
			Status:    models.StepUnresolved,
			StepText:  stepText,
		}
		stepIndex := len(steps)

		emit := func(severity models.Severity, code, message, route, inputRef string) {
			pending = append(pending, pendingFinding{
				step: stepIndex,
				finding: models.Finding{
					Severity:  severity,
					Code:      code,
					Message:   message,
					DraftLine: mapping.DraftLine,
					StepText:  stepText,
					Route:     route,
					InputRef:  inputRef,
				},
			})
		}

		literal, hasLiteral := firstQuoted(stepText)
		chosen := canonicalLookup(catalog, literal)

		switch {
		case !hasLiteral:
			emit(models.SeverityError, models.CodeKeyNotFound,
				"step carries no quoted reference", "", "")

		case chosen != nil:
			step.Status = models.StepResolved
			step.Confidence = 1.0
			step.Chosen = chosen
			rewrites[mapping.DraftLine] = chosen.PageKey + "." + chosen.ElementKey

		case strings.Contains(stepText, navPhrase):
			if pageKey, ok := catalog.PageByRoute(literal); ok {
				step.Status = models.StepResolved
				step.Confidence = 1.0
				step.Chosen = &models.Candidate{PageKey: pageKey, ElementKey: uimap.PageElementKey}
				rewrites[mapping.DraftLine] = pageKey
			} else {
				emit(models.SeverityInfo, models.CodeRouteNotMapped,
					fmt.Sprintf("route %q has no ui map page", literal), literal, "")
			}

		default:
			testID := recoverTestID(session, mapping.EventIndex)
			if testID == "" {
				emit(models.SeverityError, models.CodeKeyNotFound,
					fmt.Sprintf("reference %q matches no ui map key and no test id could be recovered", literal), "", literal)
				break
			}
			candidates := catalog.FindByTestID(testID)
			switch len(candidates) {
			case 0:
				emit(models.SeverityError, models.CodeTestIDNotFound,
					fmt.Sprintf("test id %q appears nowhere in the ui map", testID), "", testID)
			case 1:
				chosen := candidates[0]
				step.Status = models.StepResolved
				step.Confidence = 1.0
				step.Chosen = &chosen
				rewrites[mapping.DraftLine] = chosen.PageKey + "." + chosen.ElementKey
			default:
				total := len(candidates)
				step.Status = models.StepPartial
				step.Confidence = 1.0 / float64(total)
				if total > maxCandidates {
					emit(models.SeverityInfo, models.CodeCandidatesTruncated,
						fmt.Sprintf("candidate list for test id %q cut from %d to %d entries", testID, total, maxCandidates), "", testID)
					candidates = candidates[:maxCandidates]
				}
				step.Candidates = candidates
				emit(models.SeverityWarn, models.CodeAmbiguousMatch,
					fmt.Sprintf("test id %q matches %d ui map entries", testID, total), "", testID)
			}
		}

		steps = append(steps, step)
	}

	findings := assignIDs(pending, steps)
	script := rewriteScript(lines, rewrites, findings)

	now := time.Now().UTC()
	return &Result{
		Metadata: models.ResolvedMetadata{
			Version:     MetadataVersion,
			GeneratedAt: now,
			Source: models.ResolvedSource{
				DraftFeaturePath: opts.DraftPath,
				UIMapPath:        opts.UIMapPath,
				SessionPath:      opts.SessionPath,
			},
			Steps: steps,
		},
		Report: models.UiGapsReport{
			Version:     ReportVersion,
			SessionID:   meta.SessionID,
			GeneratedAt: now,
			DraftPath:   opts.DraftPath,
			UimapPath:   opts.UIMapPath,
			Findings:    findings,
			Stats:       countStats(findings),
		},
		Script: script,
	}, nil
}

// assignIDs sorts all findings by (draft line, severity rank, code), hands
// out sequential UIGAP ids, and attaches the ids back to their steps.
func assignIDs(pending []pendingFinding, steps []models.ResolvedStep) []models.Finding {
	sort.SliceStable(pending, func(a, b int) bool {
		fa, fb := pending[a].finding, pending[b].finding
		if fa.DraftLine != fb.DraftLine {
			return fa.DraftLine < fb.DraftLine
		}
		if fa.Severity.Rank() != fb.Severity.Rank() {
			return fa.Severity.Rank() < fb.Severity.Rank()
		}
		return fa.Code < fb.Code
	})

	findings := make([]models.Finding, 0, len(pending))
	for i, p := range pending {
		p.finding.ID = fmt.Sprintf("UIGAP-%04d", i+1)
		findings = append(findings, p.finding)
		steps[p.step].Findings = append(steps[p.step].Findings, p.finding.ID)
	}
	return findings
}

// rewriteScript produces the resolved text: draft lines with canonical-key
// rewrites applied to resolved steps and UIGAP comments stacked above steps
// that raised Error or Warn findings. Info findings get no comment.
func rewriteScript(lines []string, rewrites map[int]string, findings []models.Finding) string {
	comments := map[int][]string{}
	for _, f := range findings {
		if f.Severity == models.SeverityInfo {
			continue
		}
		indent := leadingSpaces(lines[f.DraftLine-1])
		comments[f.DraftLine] = append(comments[f.DraftLine],
			fmt.Sprintf("%s# UIGAP: %s %s — %s", indent, f.ID, f.Code, f.Message))
	}

	var b strings.Builder
	for i, line := range lines {
		lineNo := i + 1
		for _, comment := range comments[lineNo] {
			b.WriteString(comment)
			b.WriteString("\n")
		}
		if replacement, ok := rewrites[lineNo]; ok {
			line = replaceFirstQuoted(line, replacement)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func countStats(findings []models.Finding) models.GapStats {
	var stats models.GapStats
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityError:
			stats.Errors++
		case models.SeverityWarn:
			stats.Warnings++
		case models.SeverityInfo:
			stats.Infos++
		}
	}
	stats.Total = len(findings)
	return stats
}

// canonicalLookup resolves a literal that already has page.element shape:
// it must contain a dot, carry no selector brackets, and both keys must
// exist in the catalog. Any miss returns nil so the caller can fall through
// to the weaker rules.
func canonicalLookup(catalog *uimap.Map, literal string) *models.Candidate {
	if !strings.Contains(literal, ".") || strings.ContainsAny(literal, "[]") {
		return nil
	}
	pageKey, elementKey, _ := strings.Cut(literal, ".")
	testID, ok := catalog.Lookup(pageKey, elementKey)
	if !ok {
		return nil
	}
	return &models.Candidate{PageKey: pageKey, ElementKey: elementKey, TestID: testID}
}

// recoverTestID digs a stable test identifier out of the recorded event:
// captured attributes first, then the recorder's test-id field, then a
// selector pattern embedded in the hint.
func recoverTestID(session *models.Session, eventIndex int) string {
	if session == nil || eventIndex < 0 || eventIndex >= len(session.Events) {
		return ""
	}
	event := session.Events[eventIndex]
	if event.Target == nil {
		return ""
	}
	if id := event.Target.Attributes["data-testid"]; id != "" {
		return id
	}
	if event.Target.TestID != "" {
		return event.Target.TestID
	}
	if m := testIDPattern.FindStringSubmatch(event.Target.Hint); m != nil {
		return m[1]
	}
	return ""
}

// firstQuoted extracts the first double-quoted substring of a line.
func firstQuoted(line string) (string, bool) {
	start := strings.Index(line, `"`)
	if start < 0 {
		return "", false
	}
	end := strings.Index(line[start+1:], `"`)
	if end < 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

// replaceFirstQuoted swaps the first quoted substring for the replacement,
// leaving every later character of the line untouched. Later quoted
// substrings are user data, never references.
func replaceFirstQuoted(line, replacement string) string {
	start := strings.Index(line, `"`)
	if start < 0 {
		return line
	}
	end := strings.Index(line[start+1:], `"`)
	if end < 0 {
		return line
	}
	return line[:start+1] + replacement + line[start+1+end:]
}

func leadingSpaces(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " "))]
}
