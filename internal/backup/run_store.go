package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned by RunStore.Get for an unknown run ID.
var ErrRunNotFound = errors.New("backup run not found")

// RunRecord represents a backup run in the database
type RunRecord struct {
	ID              string       `json:"id"`
	Trigger         string       `json:"trigger"`
	Status          string       `json:"status"`
	DestinationType string       `json:"destination_type"`
	FolderName      string       `json:"folder_name"`
	FolderID        string       `json:"folder_id"`
	PagesFound      int          `json:"pages_found"`
	RootsSucceeded  int          `json:"roots_succeeded"`
	RootsFailed     int          `json:"roots_failed"`
	PagesUploaded   int          `json:"pages_uploaded"`
	ContentFailures int          `json:"content_failures"`
	PageFailures    int          `json:"page_failures"`
	Cycles          int          `json:"cycles"`
	Duplicates      int          `json:"duplicates"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
	Pages           []PageRecord `json:"pages,omitempty"`
}

// PageRecord is one page's outcome within a run
type PageRecord struct {
	PageID        string `json:"page_id"`
	ParentPageID  string `json:"parent_page_id,omitempty"`
	Title         string `json:"title"`
	ContainerName string `json:"container_name"`
	ContainerID   string `json:"container_id,omitempty"`
	ArtifactID    string `json:"artifact_id,omitempty"`
	Depth         int    `json:"depth"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ContentError  string `json:"content_error,omitempty"`
}

// RunStore persists run history. The mirror pass never reads it.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Save inserts or updates a run record. Page records are written separately
// by SavePages.
func (s *RunStore) Save(ctx context.Context, record *RunRecord) error {
	query := `
		INSERT INTO backup_runs
		(id, triggered_by, status, destination_type, folder_name, folder_id, pages_found,
		 roots_succeeded, roots_failed, pages_uploaded, content_failures, page_failures,
		 cycles, duplicates, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			folder_name = excluded.folder_name,
			folder_id = excluded.folder_id,
			pages_found = excluded.pages_found,
			roots_succeeded = excluded.roots_succeeded,
			roots_failed = excluded.roots_failed,
			pages_uploaded = excluded.pages_uploaded,
			content_failures = excluded.content_failures,
			page_failures = excluded.page_failures,
			cycles = excluded.cycles,
			duplicates = excluded.duplicates,
			error_message = excluded.error_message,
			finished_at = excluded.finished_at
	`

	var finishedAt sql.NullTime
	if record.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *record.FinishedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Trigger,
		record.Status,
		record.DestinationType,
		record.FolderName,
		record.FolderID,
		record.PagesFound,
		record.RootsSucceeded,
		record.RootsFailed,
		record.PagesUploaded,
		record.ContentFailures,
		record.PageFailures,
		record.Cycles,
		record.Duplicates,
		nullString(record.ErrorMessage),
		record.StartedAt,
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup run: %w", err)
	}
	return nil
}

// SavePages replaces the page records of a run.
func (s *RunStore) SavePages(ctx context.Context, runID string, pages []PageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_results WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear page results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO page_results
		(run_id, page_id, parent_page_id, title, container_name, container_id, artifact_id,
		 depth, error_message, content_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, page := range pages {
		if _, err := stmt.ExecContext(ctx,
			runID,
			page.PageID,
			page.ParentPageID,
			page.Title,
			page.ContainerName,
			page.ContainerID,
			page.ArtifactID,
			page.Depth,
			nullString(page.ErrorMessage),
			nullString(page.ContentError),
		); err != nil {
			return fmt.Errorf("failed to save page result %s: %w", page.PageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page results: %w", err)
	}
	return nil
}

const runColumns = `
	id, triggered_by, status, destination_type, folder_name, folder_id, pages_found,
	roots_succeeded, roots_failed, pages_uploaded, content_failures, page_failures,
	cycles, duplicates, error_message, started_at, finished_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	record := &RunRecord{}
	var errorMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Trigger,
		&record.Status,
		&record.DestinationType,
		&record.FolderName,
		&record.FolderID,
		&record.PagesFound,
		&record.RootsSucceeded,
		&record.RootsFailed,
		&record.PagesUploaded,
		&record.ContentFailures,
		&record.PageFailures,
		&record.Cycles,
		&record.Duplicates,
		&errorMsg,
		&record.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMsg.Valid {
		record.ErrorMessage = errorMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		record.FinishedAt = &t
	}
	return record, nil
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (s *RunStore) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := "SELECT " + runColumns + " FROM backup_runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup run: %w", err)
		}
		runs = append(runs, record)
	}

	return runs, rows.Err()
}

// Get returns a run with its page records.
func (s *RunStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM backup_runs WHERE id = ?", id)
	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT page_id, parent_page_id, title, container_name, container_id, artifact_id,
		       depth, error_message, content_error
		FROM page_results
		WHERE run_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query page results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var page PageRecord
		var errorMsg, contentErr sql.NullString
		if err := rows.Scan(
			&page.PageID,
			&page.ParentPageID,
			&page.Title,
			&page.ContainerName,
			&page.ContainerID,
			&page.ArtifactID,
			&page.Depth,
			&errorMsg,
			&contentErr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page result: %w", err)
		}
		page.ErrorMessage = errorMsg.String
		page.ContentError = contentErr.String
		record.Pages = append(record.Pages, page)
	}

	return record, rows.Err()
}

// Delete removes a run and its page records.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM backup_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete backup run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
