package selector

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for selector operations.
var (
	ErrSelectorNotFound = errors.New("selector not found")
	ErrEmptyKey         = errors.New("site domain and field name are required")
)

// SiteFieldSelector binds one schema field on one site (at one nesting
// context) to the selectors that extract it. One row per
// (site_domain, field_name, context_path).
type SiteFieldSelector struct {
	ID          int64     `json:"id"`
	SiteDomain  string    `json:"site_domain"`
	FieldName   string    `json:"field_name"`
	ContextPath string    `json:"context_path"`
	XPath       string    `json:"xpath"`
	CSSSelector string    `json:"css_selector"`
	SampleText  string    `json:"sample_text,omitempty"`
	Manual      bool      `json:"requires_manual_input"`
	ManualNote  string    `json:"manual_note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key renders the display key for this selector: the bare field name at the
// root context, otherwise field plus its nesting path.
func (s SiteFieldSelector) Key() string {
	if s.ContextPath == "" {
		return s.FieldName
	}
	return s.FieldName + " @ " + s.ContextPath
}

// HasSelectors reports whether anything is stored to test.
func (s SiteFieldSelector) HasSelectors() bool {
	return s.XPath != "" || s.CSSSelector != ""
}

// TestResult is one verification run for a stored selector. Results are
// append-only; history is never rewritten.
type TestResult struct {
	ID               int64     `json:"id"`
	SelectorID       int64     `json:"selector_id"`
	TestedAt         time.Time `json:"tested_at"`
	Success          bool      `json:"success"`
	MatchCount       int       `json:"match_count"`
	ExtractedPreview string    `json:"extracted_preview,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Store manages selector mappings and test history using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the selector database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS site_field_selectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_domain TEXT NOT NULL,
		field_name TEXT NOT NULL,
		context_path TEXT NOT NULL DEFAULT '',
		xpath TEXT NOT NULL DEFAULT '',
		css_selector TEXT NOT NULL DEFAULT '',
		sample_text TEXT NOT NULL DEFAULT '',
		requires_manual_input INTEGER NOT NULL DEFAULT 0,
		manual_note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(site_domain, field_name, context_path)
	);

	CREATE TABLE IF NOT EXISTS selector_test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		selector_id INTEGER NOT NULL REFERENCES site_field_selectors(id),
		tested_at TEXT NOT NULL,
		success INTEGER NOT NULL,
		match_count INTEGER NOT NULL,
		extracted_preview TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the selector data for (siteDomain, fieldName, contextPath).
// Re-saving an existing key replaces its selectors and clears any manual flag,
// since a freshly captured selector supersedes a manual-entry marker.
func (s *Store) Save(sel SiteFieldSelector) (*SiteFieldSelector, error) {
	if sel.SiteDomain == "" || sel.FieldName == "" {
		return nil, ErrEmptyKey
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO site_field_selectors (
			site_domain, field_name, context_path,
			xpath, css_selector, sample_text,
			requires_manual_input, manual_note,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT(site_domain, field_name, context_path) DO UPDATE SET
			xpath = excluded.xpath,
			css_selector = excluded.css_selector,
			sample_text = excluded.sample_text,
			requires_manual_input = 0,
			manual_note = '',
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		sel.SiteDomain, sel.FieldName, sel.ContextPath,
		sel.XPath, sel.CSSSelector, sel.SampleText,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert selector: %w", err)
	}

	return s.Get(sel.SiteDomain, sel.FieldName, sel.ContextPath)
}

// MarkManual flags (siteDomain, fieldName, contextPath) as requiring manual
// input, creating the row if no selector was ever saved. Stored selectors are
// cleared: a field the operator declared untestable has nothing left to test.
func (s *Store) MarkManual(siteDomain, fieldName, contextPath, note string) (*SiteFieldSelector, error) {
	if siteDomain == "" || fieldName == "" {
		return nil, ErrEmptyKey
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO site_field_selectors (
			site_domain, field_name, context_path,
			requires_manual_input, manual_note,
			created_at, updated_at
		) VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(site_domain, field_name, context_path) DO UPDATE SET
			requires_manual_input = 1,
			manual_note = excluded.manual_note,
			xpath = '',
			css_selector = '',
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		siteDomain, fieldName, contextPath,
		note, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark manual: %w", err)
	}

	return s.Get(siteDomain, fieldName, contextPath)
}

// Get retrieves the selector for one (siteDomain, fieldName, contextPath) key.
func (s *Store) Get(siteDomain, fieldName, contextPath string) (*SiteFieldSelector, error) {
	query := selectorColumns + `
		FROM site_field_selectors
		WHERE site_domain = ? AND field_name = ? AND context_path = ?
	`

	sel, err := scanSelector(s.db.QueryRow(query, siteDomain, fieldName, contextPath))
	if err == sql.ErrNoRows {
		return nil, ErrSelectorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query selector: %w", err)
	}
	return sel, nil
}

// ListForDomain returns all selectors stored for a site, ordered by context
// then field name so nested groups display together.
func (s *Store) ListForDomain(siteDomain string) ([]SiteFieldSelector, error) {
	query := selectorColumns + `
		FROM site_field_selectors
		WHERE site_domain = ?
		ORDER BY context_path, field_name
	`

	rows, err := s.db.Query(query, siteDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to list selectors: %w", err)
	}
	defer rows.Close()

	var results []SiteFieldSelector
	for rows.Next() {
		sel, err := scanSelector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selector: %w", err)
		}
		results = append(results, *sel)
	}
	return results, rows.Err()
}

// RecordTestResult appends one verification run to the selector's history.
func (s *Store) RecordTestResult(result TestResult) (*TestResult, error) {
	if result.TestedAt.IsZero() {
		result.TestedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO selector_test_results (
			selector_id, tested_at, success, match_count, extracted_preview, error
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query,
		result.SelectorID, formatTime(result.TestedAt),
		boolToInt(result.Success), result.MatchCount,
		result.ExtractedPreview, result.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record test result: %w", err)
	}

	result.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read result id: %w", err)
	}
	return &result, nil
}

// TestHistory returns recorded runs for a selector, newest first.
func (s *Store) TestHistory(selectorID int64, limit int) ([]TestResult, error) {
	query := `
		SELECT id, selector_id, tested_at, success, match_count, extracted_preview, error
		FROM selector_test_results
		WHERE selector_id = ?
		ORDER BY tested_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, selectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test history: %w", err)
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var r TestResult
		var testedAt string
		var success int
		if err := rows.Scan(&r.ID, &r.SelectorID, &testedAt, &success, &r.MatchCount, &r.ExtractedPreview, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan test result: %w", err)
		}
		r.TestedAt, _ = parseTime(testedAt)
		r.Success = success != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// SuccessRate is the fraction of recorded runs that succeeded, 0.0 when the
// selector has never been tested.
func (s *Store) SuccessRate(selectorID int64) (float64, error) {
	var total, succeeded int
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0)
		FROM selector_test_results
		WHERE selector_id = ?
	`, selectorID).Scan(&total, &succeeded)
	if err != nil {
		return 0, fmt.Errorf("failed to compute success rate: %w", err)
	}
	if total == 0 {
		return 0.0, nil
	}
	return float64(succeeded) / float64(total), nil
}

const selectorColumns = `
		SELECT id, site_domain, field_name, context_path,
		       xpath, css_selector, sample_text,
		       requires_manual_input, manual_note,
		       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSelector(row rowScanner) (*SiteFieldSelector, error) {
	var sel SiteFieldSelector
	var manual int
	var createdAt, updatedAt string

	err := row.Scan(
		&sel.ID, &sel.SiteDomain, &sel.FieldName, &sel.ContextPath,
		&sel.XPath, &sel.CSSSelector, &sel.SampleText,
		&manual, &sel.ManualNote,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sel.Manual = manual != 0
	sel.CreatedAt, _ = parseTime(createdAt)
	sel.UpdatedAt, _ = parseTime(updatedAt)
	return &sel, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
