// Package uimap loads and queries the static UI catalog: logical page and
// element keys mapped to the stable test identifiers baked into the
// application under test.
package uimap

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

// PageElementKey is the synthetic element key used when a navigation step
// resolves to a page rather than an element on it.
const PageElementKey = "__page__"

// Page is one logical page in the catalog.
type Page struct {
	// Route is the normalized route the recorder reports for this page.
	Route string `yaml:"route,omitempty"`
	// Anchor is an optional fragment identifying the page within a route.
	Anchor string `yaml:"anchor,omitempty"`
	// Elements maps element keys to stable test identifiers.
	Elements map[string]string `yaml:"elements"`
}

// Map is the full catalog, read-only during resolution.
type Map struct {
	Pages map[string]Page `yaml:"pages"`
}

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ui map: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse ui map: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate enforces the load-time invariants. Element keys must not contain
// "." because "page.element" is the canonical reference syntax.
func (m *Map) validate() error {
	for pageKey, page := range m.Pages {
		if pageKey == "" {
			return fmt.Errorf("ui map contains an empty page key")
		}
		for elementKey := range page.Elements {
			if elementKey == "" {
				return fmt.Errorf("page %q contains an empty element key", pageKey)
			}
			if strings.Contains(elementKey, ".") {
				return fmt.Errorf("page %q element key %q must not contain '.'", pageKey, elementKey)
			}
		}
	}
	return nil
}

// Lookup returns the test identifier for an exact page/element key pair.
func (m *Map) Lookup(pageKey, elementKey string) (string, bool) {
	page, ok := m.Pages[pageKey]
	if !ok {
		return "", false
	}
	testID, ok := page.Elements[elementKey]
	return testID, ok
}

// PageByRoute finds a page whose key or declared route matches the given
// route literal, tolerating a missing or extra leading slash on the key.
func (m *Map) PageByRoute(route string) (string, bool) {
	if route == "" {
		return "", false
	}
	trimmed := strings.TrimPrefix(route, "/")
	// Deterministic scan order so equal-priority matches never flap.
	for _, pageKey := range m.PageKeys() {
		if pageKey == route || pageKey == trimmed || strings.TrimPrefix(pageKey, "/") == trimmed {
			return pageKey, true
		}
	}
	for _, pageKey := range m.PageKeys() {
		page := m.Pages[pageKey]
		if page.Route != "" && (page.Route == route || strings.TrimPrefix(page.Route, "/") == trimmed) {
			return pageKey, true
		}
	}
	return "", false
}

// FindByTestID returns every catalog entry carrying the given test
// identifier, ordered by page key then element key.
func (m *Map) FindByTestID(testID string) []models.Candidate {
	if testID == "" {
		return nil
	}
	var out []models.Candidate
	for _, pageKey := range m.PageKeys() {
		page := m.Pages[pageKey]
		elementKeys := make([]string, 0, len(page.Elements))
		for k := range page.Elements {
			elementKeys = append(elementKeys, k)
		}
		sort.Strings(elementKeys)
		for _, elementKey := range elementKeys {
			if page.Elements[elementKey] == testID {
				out = append(out, models.Candidate{
					PageKey:    pageKey,
					ElementKey: elementKey,
					TestID:     testID,
				})
			}
		}
	}
	return out
}

// PageKeys returns all page keys in sorted order.
func (m *Map) PageKeys() []string {
	keys := make([]string, 0, len(m.Pages))
	for k := range m.Pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
