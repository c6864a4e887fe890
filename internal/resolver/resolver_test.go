package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
	"github.com/vincentbai/browsetrace-scribe/internal/uimap"
)

// draftFor builds a minimal draft script plus matching metadata. Step i is
// mapped to event index i.
func draftFor(steps ...string) (string, *models.DraftMetadata) {
	lines := []string{
		"# language: en",
		"",
		"Feature: Recorded session s1",
		"",
		"  Scenario: Recorded user journey",
	}
	meta := &models.DraftMetadata{
		SessionID:   "s1",
		InputStatus: models.InputOK,
	}
	for i, step := range steps {
		lines = append(lines, "    "+step)
		meta.Mappings = append(meta.Mappings, models.DraftMapping{
			EventIndex:  i,
			ActionIndex: i,
			DraftLine:   len(lines),
			Confidence:  0.7,
		})
	}
	return strings.Join(lines, "\n") + "\n", meta
}

func catalog(t *testing.T, yaml string) *uimap.Map {
	t.Helper()
	m, err := uimap.Parse([]byte(yaml))
	require.NoError(t, err)
	return m
}

func loginCatalog(t *testing.T) *uimap.Map {
	return catalog(t, `
pages:
  login:
    route: login.html
    elements:
      username: user-input
      password: pass-input
      submit: login-submit
`)
}

func testIDSession(ids ...string) *models.Session {
	session := &models.Session{SessionID: "s1"}
	for i, id := range ids {
		event := models.Event{TMs: int64(i) * 3000, Kind: models.KindClick}
		if id != "" {
			event.Target = &models.Target{Attributes: map[string]string{"data-testid": id}}
		}
		session.Events = append(session.Events, event)
	}
	return session
}

func TestResolveContractViolations(t *testing.T) {
	draftText, meta := draftFor(`When I click "login.username"`)
	cat := loginCatalog(t)

	_, err := Resolve("", meta, cat, nil, Options{})
	assert.Error(t, err)
	_, err = Resolve(draftText, nil, cat, nil, Options{})
	assert.Error(t, err)
	_, err = Resolve(draftText, meta, nil, nil, Options{})
	assert.Error(t, err)
}

func TestExactKeyResolution(t *testing.T) {
	draftText, meta := draftFor(`When I click "login.username"`)
	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)

	require.Len(t, result.Metadata.Steps, 1)
	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepResolved, step.Status)
	assert.Equal(t, 1.0, step.Confidence)
	require.NotNil(t, step.Chosen)
	assert.Equal(t, models.Candidate{PageKey: "login", ElementKey: "username", TestID: "user-input"}, *step.Chosen)
	assert.Empty(t, result.Report.Findings)
	assert.Equal(t, draftText, result.Script, "canonical reference rewrites to itself")
}

func TestNavigationResolvesToPageKey(t *testing.T) {
	draftText, meta := draftFor(`Given I am on page "login.html"`)
	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepResolved, step.Status)
	require.NotNil(t, step.Chosen)
	assert.Equal(t, "login", step.Chosen.PageKey)
	assert.Equal(t, uimap.PageElementKey, step.Chosen.ElementKey)
	assert.Contains(t, result.Script, `Given I am on page "login"`)
}

func TestNavigationRouteNotMapped(t *testing.T) {
	draftText, meta := draftFor(`Given I am on page "checkout.html"`)
	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepUnresolved, step.Status)
	require.Len(t, result.Report.Findings, 1)
	finding := result.Report.Findings[0]
	assert.Equal(t, models.SeverityInfo, finding.Severity)
	assert.Equal(t, models.CodeRouteNotMapped, finding.Code)
	assert.Equal(t, "checkout.html", finding.Route)
	assert.NotContains(t, result.Script, "# UIGAP:", "info findings never get comments")
}

func TestTestIDRecoveryUniqueMatch(t *testing.T) {
	draftText, meta := draftFor(`When I click "[data-testid='user-input']"`)
	session := testIDSession("user-input")
	result, err := Resolve(draftText, meta, loginCatalog(t), session, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepResolved, step.Status)
	assert.Equal(t, 1.0, step.Confidence)
	assert.Contains(t, result.Script, `When I click "login.username"`)
	assert.Empty(t, result.Report.Findings)
}

func TestTestIDRecoveryFromHintPattern(t *testing.T) {
	draftText, meta := draftFor(`When I click "[data-testid='pass-input']"`)
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='pass-input']"}},
	}}
	result, err := Resolve(draftText, meta, loginCatalog(t), session, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.StepResolved, result.Metadata.Steps[0].Status)
	assert.Contains(t, result.Script, `When I click "login.password"`)
}

func TestTestIDNotFound(t *testing.T) {
	draftText, meta := draftFor(`When I click "[data-testid='ghost']"`)
	session := testIDSession("ghost")
	result, err := Resolve(draftText, meta, loginCatalog(t), session, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepUnresolved, step.Status)
	require.Len(t, result.Report.Findings, 1)
	finding := result.Report.Findings[0]
	assert.Equal(t, models.SeverityError, finding.Severity)
	assert.Equal(t, models.CodeTestIDNotFound, finding.Code)
	assert.Contains(t, result.Script, "# UIGAP: "+finding.ID+" "+finding.Code)
}

func TestAmbiguousTestID(t *testing.T) {
	cat := catalog(t, `
pages:
  billing:
    elements:
      save: dup
  profile:
    elements:
      save: dup
`)
	draftText, meta := draftFor(`When I click "[data-testid='dup']"`)
	session := testIDSession("dup")
	result, err := Resolve(draftText, meta, cat, session, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepPartial, step.Status)
	assert.InDelta(t, 0.5, step.Confidence, 1e-9)
	require.Len(t, step.Candidates, 2)

	var warns []models.Finding
	for _, f := range result.Report.Findings {
		if f.Code == models.CodeAmbiguousMatch {
			warns = append(warns, f)
		}
	}
	require.Len(t, warns, 1, "exactly one ambiguity warning per step")
	assert.Equal(t, models.SeverityWarn, warns[0].Severity)
	assert.Equal(t, step.DraftLine, warns[0].DraftLine)
	assert.Contains(t, result.Script, `[data-testid='dup']`, "partial steps are not rewritten")
}

func TestCandidateTruncationEmitsBothFindings(t *testing.T) {
	cat := catalog(t, `
pages:
  a:
    elements:
      x: multi
  b:
    elements:
      x: multi
  c:
    elements:
      x: multi
`)
	draftText, meta := draftFor(`When I click "[data-testid='multi']"`)
	session := testIDSession("multi")
	result, err := Resolve(draftText, meta, cat, session, Options{MaxCandidates: 2})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepPartial, step.Status)
	assert.InDelta(t, 1.0/3.0, step.Confidence, 1e-9)
	assert.Len(t, step.Candidates, 2, "candidate list capped")

	codes := []string{}
	for _, f := range result.Report.Findings {
		codes = append(codes, f.Code)
	}
	// Same line: Warn sorts before Info.
	assert.Equal(t, []string{models.CodeAmbiguousMatch, models.CodeCandidatesTruncated}, codes)
}

func TestKeyNotFoundWithoutSession(t *testing.T) {
	draftText, meta := draftFor(`When I click "[data-testid='user-input']"`)
	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)

	step := result.Metadata.Steps[0]
	assert.Equal(t, models.StepUnresolved, step.Status)
	require.Len(t, result.Report.Findings, 1)
	assert.Equal(t, models.CodeKeyNotFound, result.Report.Findings[0].Code)
	assert.Equal(t, models.SeverityError, result.Report.Findings[0].Severity)
}

func TestDeterministicFindingIDs(t *testing.T) {
	draftText, meta := draftFor(
		`When I click "nope"`,
		`When I click "[data-testid='also-nope']"`,
	)
	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)

	require.Len(t, result.Report.Findings, 2)
	assert.Equal(t, "UIGAP-0001", result.Report.Findings[0].ID)
	assert.Equal(t, 6, result.Report.Findings[0].DraftLine)
	assert.Equal(t, "UIGAP-0002", result.Report.Findings[1].ID)
	assert.Equal(t, 7, result.Report.Findings[1].DraftLine)

	assert.Equal(t, models.GapStats{Errors: 2, Total: 2}, result.Report.Stats)
	assert.Equal(t, []string{"UIGAP-0001"}, result.Metadata.Steps[0].Findings)
	assert.Equal(t, []string{"UIGAP-0002"}, result.Metadata.Steps[1].Findings)
}

func TestLiteralValuePreservation(t *testing.T) {
	draftText, meta := draftFor(`When I fill "[data-testid='user-input']" with "admin"`)
	session := testIDSession("user-input")
	result, err := Resolve(draftText, meta, loginCatalog(t), session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, `When I fill "login.username" with "admin"`)
}

func TestCommentPlacement(t *testing.T) {
	draftText, meta := draftFor(
		`Given I am on page "login.html"`,
		`When I click "[data-testid='ghost']"`,
	)
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindNavigate, Route: "login.html"},
		{TMs: 3000, Kind: models.KindClick, Target: &models.Target{Attributes: map[string]string{"data-testid": "ghost"}}},
	}}
	result, err := Resolve(draftText, meta, loginCatalog(t), session, Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(result.Script, "\n"), "\n")
	commentIdx := -1
	for i, line := range lines {
		if strings.Contains(line, "# UIGAP:") {
			commentIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, commentIdx, 0, "error finding must produce a comment")
	assert.Contains(t, lines[commentIdx+1], `When I click "[data-testid='ghost']"`,
		"comment sits directly above its step")
	assert.True(t, strings.HasPrefix(lines[commentIdx], "    #"), "comment matches step indentation")
}

func TestRoundTripIdempotence(t *testing.T) {
	draftText, meta := draftFor(
		`Given I am on page "login.html"`,
		`When I fill "[data-testid='user-input']" with "admin"`,
		`And I click "login.submit"`,
	)
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindNavigate, Route: "login.html"},
		{TMs: 3000, Kind: models.KindFill, Target: &models.Target{Attributes: map[string]string{"data-testid": "user-input"}}},
		{TMs: 6000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='login-submit']"}},
	}}
	cat := loginCatalog(t)

	first, err := Resolve(draftText, meta, cat, session, Options{})
	require.NoError(t, err)
	require.Empty(t, first.Report.Findings)

	second, err := Resolve(first.Script, meta, cat, session, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Script, second.Script, "re-resolving a resolved script changes nothing")
}

func TestMappingsProcessedInDraftLineOrder(t *testing.T) {
	draftText, meta := draftFor(
		`When I click "login.username"`,
		`When I click "login.password"`,
	)
	// Shuffle the metadata order; output must still be line-ordered.
	meta.Mappings[0], meta.Mappings[1] = meta.Mappings[1], meta.Mappings[0]

	result, err := Resolve(draftText, meta, loginCatalog(t), nil, Options{})
	require.NoError(t, err)
	require.Len(t, result.Metadata.Steps, 2)
	assert.Equal(t, 6, result.Metadata.Steps[0].DraftLine)
	assert.Equal(t, 7, result.Metadata.Steps[1].DraftLine)
}
