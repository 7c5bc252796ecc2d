package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_backup_runs",
		Up: `
-- One row per mirror pass
CREATE TABLE backup_runs (
    id TEXT PRIMARY KEY,
    triggered_by TEXT NOT NULL DEFAULT 'manual',
    status TEXT NOT NULL,
    destination_type TEXT NOT NULL,
    folder_name TEXT NOT NULL DEFAULT '',
    folder_id TEXT NOT NULL DEFAULT '',
    pages_found INTEGER NOT NULL DEFAULT 0,
    roots_succeeded INTEGER NOT NULL DEFAULT 0,
    roots_failed INTEGER NOT NULL DEFAULT 0,
    pages_uploaded INTEGER NOT NULL DEFAULT 0,
    content_failures INTEGER NOT NULL DEFAULT 0,
    page_failures INTEGER NOT NULL DEFAULT 0,
    cycles INTEGER NOT NULL DEFAULT 0,
    duplicates INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX idx_backup_runs_started ON backup_runs(started_at);
CREATE INDEX idx_backup_runs_status ON backup_runs(status);
`,
		Down: `
DROP TABLE IF EXISTS backup_runs;
`,
	},
	{
		Version: "002_page_results",
		Up: `
-- Per-page outcome of a run
CREATE TABLE page_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    page_id TEXT NOT NULL,
    parent_page_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    container_name TEXT NOT NULL,
    container_id TEXT NOT NULL DEFAULT '',
    artifact_id TEXT NOT NULL DEFAULT '',
    depth INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    content_error TEXT,
    FOREIGN KEY (run_id) REFERENCES backup_runs(id) ON DELETE CASCADE
);

CREATE INDEX idx_page_results_run ON page_results(run_id);
`,
		Down: `
DROP TABLE IF EXISTS page_results;
`,
	},
}
