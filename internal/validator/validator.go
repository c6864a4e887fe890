// Package validator cross-checks a resolved script against its metadata and
// diagnostics report. It never crashes on bad artifacts: every broken rule
// becomes one typed violation and all of them are reported together.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vincentbai/browsetrace-scribe/internal/draft"
	"github.com/vincentbai/browsetrace-scribe/internal/models"
	"github.com/vincentbai/browsetrace-scribe/internal/uimap"
)

// Violation codes.
const (
	CodeHeaderMissing     = "HEADER_MISSING"
	CodeMarkerMissing     = "MARKER_MISSING"
	CodeStepTextMismatch  = "STEP_TEXT_MISMATCH"
	CodeStepNotFound      = "STEP_NOT_FOUND"
	CodeCommentMissing    = "COMMENT_MISSING"
	CodeStatsMismatch     = "STATS_MISMATCH"
	CodeFindingIDSequence = "FINDING_ID_SEQUENCE"
	CodeDraftUnavailable  = "DRAFT_UNAVAILABLE"
	CodeReportUnavailable = "REPORT_UNAVAILABLE"
)

var commentPattern = regexp.MustCompile(`^\s*# UIGAP: (UIGAP-\d{4}) ([A-Z_]+)`)

// Violation is one broken consistency rule. Line is 1-based into File, 0
// when the rule has no single location.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Inputs carries the artifacts to check. DraftScript and Report are
// optional; leaving them out downgrades their rules to warnings.
type Inputs struct {
	ResolvedScript string
	ResolvedPath   string
	Metadata       *models.ResolvedMetadata
	DraftScript    string
	DraftPath      string
	Report         *models.UiGapsReport
}

// Result accumulates everything the validator found.
type Result struct {
	Errors   []Violation
	Warnings []Violation
}

// OK reports whether the artifacts are mutually consistent.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Validate runs every consistency rule it has inputs for.
func Validate(in Inputs) *Result {
	res := &Result{}
	if in.Metadata == nil {
		res.fail(CodeStepNotFound, in.ResolvedPath, 0, "resolved metadata is missing")
		return res
	}

	resolvedLines := splitLines(in.ResolvedScript)
	res.checkShape(resolvedLines, in)

	var draftLines []string
	if in.DraftScript == "" {
		res.warn(CodeDraftUnavailable, in.DraftPath, "draft script unavailable, skipping verbatim step checks")
	} else {
		draftLines = splitLines(in.DraftScript)
	}

	matched := res.checkSteps(resolvedLines, draftLines, in)

	if in.Report == nil {
		res.warn(CodeReportUnavailable, "", "diagnostics report unavailable, skipping comment and stats checks")
		return res
	}
	res.checkComments(resolvedLines, matched, in)
	res.checkReportShape(in.Report)
	return res
}

// checkShape verifies the locale marker and section markers.
func (res *Result) checkShape(lines []string, in Inputs) {
	if len(lines) == 0 || lines[0] != draft.LocaleMarker {
		res.fail(CodeHeaderMissing, in.ResolvedPath, 1,
			fmt.Sprintf("script must begin with %q", draft.LocaleMarker))
	}
	if !containsPrefixed(lines, "Feature:") {
		res.fail(CodeMarkerMissing, in.ResolvedPath, 0, "script has no Feature section")
	}
	if !containsPrefixed(lines, "Scenario:") {
		res.fail(CodeMarkerMissing, in.ResolvedPath, 0, "script has no Scenario section")
	}
}

// checkSteps verifies verbatim preservation against the draft and
// strictly-increasing occurrence order in the resolved script. It returns
// the resolved-script line index matched for each metadata step, keyed by
// draft line, for the comment check.
func (res *Result) checkSteps(resolvedLines, draftLines []string, in Inputs) map[int]int {
	steps := append([]models.ResolvedStep(nil), in.Metadata.Steps...)
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].DraftLine < steps[b].DraftLine })

	matched := map[int]int{}
	cursor := -1
	for _, step := range steps {
		if draftLines != nil {
			if step.DraftLine < 1 || step.DraftLine > len(draftLines) {
				res.fail(CodeStepTextMismatch, in.DraftPath, step.DraftLine,
					fmt.Sprintf("draft line %d does not exist", step.DraftLine))
			} else if draftLines[step.DraftLine-1] != step.StepText {
				res.fail(CodeStepTextMismatch, in.DraftPath, step.DraftLine,
					fmt.Sprintf("metadata step text does not match draft line %d", step.DraftLine))
			}
		}

		expected := ExpectedResolvedLine(step)
		pos := indexAfter(resolvedLines, expected, cursor)
		if pos < 0 {
			res.fail(CodeStepNotFound, in.ResolvedPath, 0,
				fmt.Sprintf("step from draft line %d is missing or out of order in resolved script", step.DraftLine))
			continue
		}
		matched[step.DraftLine] = pos
		cursor = pos
	}
	return matched
}

// checkComments verifies the UIGAP comment contract: every Error/Warn
// finding must have a matching comment in the block directly above its step.
func (res *Result) checkComments(resolvedLines []string, matched map[int]int, in Inputs) {
	for _, f := range in.Report.Findings {
		if f.Severity == models.SeverityInfo {
			continue
		}
		pos, ok := matched[f.DraftLine]
		if !ok {
			res.fail(CodeCommentMissing, in.ResolvedPath, 0,
				fmt.Sprintf("finding %s references draft line %d with no matched step", f.ID, f.DraftLine))
			continue
		}
		if !commentBlockHas(resolvedLines, pos, f.ID, f.Code) {
			res.fail(CodeCommentMissing, in.ResolvedPath, pos+1,
				fmt.Sprintf("no comment for finding %s %s above its step", f.ID, f.Code))
		}
	}
}

// checkReportShape verifies stats totals, per-severity counts and the exact
// sequential id sequence.
func (res *Result) checkReportShape(report *models.UiGapsReport) {
	var errors, warnings, infos int
	for _, f := range report.Findings {
		switch f.Severity {
		case models.SeverityError:
			errors++
		case models.SeverityWarn:
			warnings++
		case models.SeverityInfo:
			infos++
		}
	}
	if report.Stats.Total != len(report.Findings) {
		res.fail(CodeStatsMismatch, "", 0,
			fmt.Sprintf("stats.total is %d but report has %d findings", report.Stats.Total, len(report.Findings)))
	}
	if report.Stats.Errors != errors || report.Stats.Warnings != warnings || report.Stats.Infos != infos {
		res.fail(CodeStatsMismatch, "", 0, "per-severity stats do not match findings")
	}
	for i, f := range report.Findings {
		if want := fmt.Sprintf("UIGAP-%04d", i+1); f.ID != want {
			res.fail(CodeFindingIDSequence, "", 0,
				fmt.Sprintf("finding %d has id %s, want %s", i, f.ID, want))
		}
	}
}

// ExpectedResolvedLine is the exact line a metadata step should occupy in
// the resolved script: the draft text with its first quoted substring
// replaced by the chosen canonical key, or verbatim when nothing was chosen.
func ExpectedResolvedLine(step models.ResolvedStep) string {
	if step.Chosen == nil {
		return step.StepText
	}
	key := step.Chosen.PageKey
	if step.Chosen.ElementKey != uimap.PageElementKey {
		key = step.Chosen.PageKey + "." + step.Chosen.ElementKey
	}
	return replaceFirstQuoted(step.StepText, key)
}

// commentBlockHas scans the consecutive comment lines directly above pos
// (skipping blanks) for a UIGAP comment with the given id and code.
func commentBlockHas(lines []string, pos int, id, code string) bool {
	for i := pos - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		m := commentPattern.FindStringSubmatch(lines[i])
		if m == nil {
			return false
		}
		if m[1] == id && m[2] == code {
			return true
		}
	}
	return false
}

// indexAfter finds the first occurrence of line strictly after cursor.
func indexAfter(lines []string, line string, cursor int) int {
	for i := cursor + 1; i < len(lines); i++ {
		if lines[i] == line {
			return i
		}
	}
	return -1
}

func containsPrefixed(lines []string, prefix string) bool {
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return true
		}
	}
	return false
}

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

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func (res *Result) fail(code, file string, line int, message string) {
	res.Errors = append(res.Errors, Violation{Code: code, Message: message, File: file, Line: line})
}

func (res *Result) warn(code, file, message string) {
	res.Warnings = append(res.Warnings, Violation{Code: code, Message: message, File: file})
}
