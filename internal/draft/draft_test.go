package draft

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

func strptr(s string) *string { return &s }

func loginSession() *models.Session {
	return &models.Session{
		SessionID: "s1",
		Events: []models.Event{
			{TMs: 0, Kind: models.KindNavigate, Route: "login.html"},
			{TMs: 3000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='user']"}},
			{TMs: 3500, Kind: models.KindFill, Target: &models.Target{Hint: "[data-testid='user']"}, Value: strptr("admin")},
			{TMs: 6000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='submit']"}, WaitMs: 2500},
		},
	}
}

func TestBuildNilSessionIsContractViolation(t *testing.T) {
	_, err := Build(nil, Options{})
	require.Error(t, err)
}

func TestBuildRejectsEmptySession(t *testing.T) {
	result, err := Build(&models.Session{SessionID: "s1"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.InputInvalid, result.Metadata.InputStatus)
	assert.Contains(t, result.Metadata.Warnings, WarnNoEvents)
	assert.Empty(t, result.Script)
}

func TestBuildRejectsSessionWithoutSemanticEvents(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindNavigate, Route: "home.html"},
		{TMs: 500, Kind: models.KindNavigate, Route: "about.html"},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.InputInvalid, result.Metadata.InputStatus)
	assert.Contains(t, result.Metadata.Warnings, WarnNoSemanticEvents)
}

func TestBuildRejectsMalformedEvents(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='x']"}},
		{TMs: 100, Kind: ""},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.InputInvalid, result.Metadata.InputStatus)
	require.Len(t, result.Metadata.Warnings, 1)
	assert.Contains(t, result.Metadata.Warnings[0], WarnMalformedEvent)
}

func TestBuildRendersLoginSession(t *testing.T) {
	result, err := Build(loginSession(), Options{})
	require.NoError(t, err)
	require.Equal(t, models.InputOK, result.Metadata.InputStatus)

	lines := strings.Split(strings.TrimSuffix(result.Script, "\n"), "\n")
	require.Equal(t, []string{
		"# language: en",
		"",
		"Feature: Recorded session s1",
		"",
		"  Scenario: Recorded user journey",
		`    Given I am on page "login.html"`,
		`    When I fill "[data-testid='user']" with "admin"`,
		"    And I wait 2 seconds",
		`    And I click "[data-testid='submit']"`,
	}, lines)

	assert.Equal(t, 4, result.Metadata.EventsCount)
	assert.Equal(t, 3, result.Metadata.ActionsCount)
	assert.Equal(t, 3, result.Metadata.StepsInferredCount)
	assert.Equal(t, 0, result.Metadata.EscapeHatchCount)

	require.Len(t, result.Metadata.Mappings, 3)
	assert.Equal(t, models.DraftMapping{EventIndex: 0, ActionIndex: 0, DraftLine: 6, Confidence: InferenceConfidence}, result.Metadata.Mappings[0])
	assert.Equal(t, models.DraftMapping{EventIndex: 2, ActionIndex: 1, DraftLine: 7, Confidence: InferenceConfidence}, result.Metadata.Mappings[1])
	assert.Equal(t, models.DraftMapping{EventIndex: 3, ActionIndex: 2, DraftLine: 9, Confidence: InferenceConfidence}, result.Metadata.Mappings[2])
}

func TestWaitAnnotationFloor(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='a']"}, WaitMs: 1200},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Script, "When I wait 1 second\n")

	session.Events[0].WaitMs = 900
	result, err = Build(session, Options{})
	require.NoError(t, err)
	assert.NotContains(t, result.Script, "I wait")
}

func TestEscapeHatchForUnrecognizedAction(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='a']"}},
		{TMs: 5000, Kind: models.KindToggle, Target: &models.Target{Hint: "[data-testid='dark-mode']"}},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, EscapeHatchMarker)
	assert.Contains(t, result.Script, `"kind":"toggle"`)
	assert.Equal(t, 1, result.Metadata.EscapeHatchCount)
	require.Len(t, result.Metadata.Mappings, 1, "escape hatch steps get no mapping")
}

func TestEscapeHatchForClickWithoutHint(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick},
		{TMs: 5000, Kind: models.KindFill, Target: &models.Target{Hint: "[data-testid='q']"}, Value: strptr("x")},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.EscapeHatchCount)
}

func TestEscapeHatchTruncatesLongSnapshots(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='a']"}},
		{TMs: 5000, Kind: models.KindModalOpen, RawScript: strings.Repeat("x", 600)},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, truncationMarker)
	assert.Contains(t, result.Metadata.Warnings, WarnRawTruncated)
}

func TestConnectorRewriting(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='a']"}},
		{TMs: 5000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='b']"}},
		{TMs: 10000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='c']"}},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, `When I click "[data-testid='a']"`)
	assert.Contains(t, result.Script, `And I click "[data-testid='b']"`)
	assert.Contains(t, result.Script, `And I click "[data-testid='c']"`)
}

func TestEveryNavigateGetsAStep(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindNavigate, Route: "a.html"},
		{TMs: 3000, Kind: models.KindNavigate, Route: "b.html"},
		{TMs: 6000, Kind: models.KindClick, Target: &models.Target{Hint: "[data-testid='x']"}},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, `Given I am on page "a.html"`)
	assert.Contains(t, result.Script, `And I am on page "b.html"`)
}

func TestNormalizeRoute(t *testing.T) {
	cases := []struct {
		name    string
		event   models.Event
		baseURL string
		want    string
	}{
		{"html segment with fragment", models.Event{URL: "https://app.example.com/shop/cart.html#items"}, "", "cart.html#items"},
		{"base url stripped", models.Event{Route: "https://app.example.com/x/index.html"}, "https://app.example.com", "index.html"},
		{"plain path falls back to last segment", models.Event{Route: "/app/dashboard"}, "", "dashboard"},
		{"root", models.Event{Route: "/"}, "", "/"},
		{"query dropped", models.Event{Route: "/page.html?q=1"}, "", "page.html"},
		{"explicit fragment field", models.Event{Pathname: "/settings.html", Fragment: "profile"}, "", "settings.html#profile"},
		{"html segment preferred over later segment", models.Event{Route: "/app/report.html/view"}, "", "report.html"},
		{"empty", models.Event{}, "", "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeRoute(tc.event, tc.baseURL))
		})
	}
}

func TestSanitizeRendering(t *testing.T) {
	session := &models.Session{SessionID: "s1", Events: []models.Event{
		{TMs: 0, Kind: models.KindFill, Target: &models.Target{Hint: `input[name="q"]`}, Value: strptr("line1\nline2")},
	}}
	result, err := Build(session, Options{})
	require.NoError(t, err)

	assert.Contains(t, result.Script, `When I fill "input[name='q']" with "line1line2"`)
}
