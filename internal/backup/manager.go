package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/notion-backup/internal/logging"
	"github.com/TheGojiOG/notion-backup/internal/mirror"
	"github.com/TheGojiOG/notion-backup/internal/notion"
	"github.com/TheGojiOG/notion-backup/internal/tree"
	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still mirroring.
var ErrRunInProgress = errors.New("a backup run is already in progress")

// Run triggers
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerAPI       = "api"
)

// Source lists pages and serves their content.
type Source interface {
	ListAllPages(ctx context.Context) ([]notion.Page, error)
	mirror.ContentSource
}

// Destination is a mirror destination that can name its backend.
type Destination interface {
	mirror.Destination
	Type() string
}

// Options configures a Manager
type Options struct {
	RootID       string
	FolderPrefix string
	Output       io.Writer
	Clock        func() time.Time

	// HistoryRetention is how many runs to keep in history; 0 keeps all.
	HistoryRetention int
}

// Manager orchestrates backup runs: list, build the forest, mirror, record.
// At most one run executes at a time.
type Manager struct {
	source Source
	dest   Destination
	store  *RunStore
	opts   Options

	mu      sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewManager creates a new backup manager. store may be nil to skip history.
func NewManager(source Source, dest Destination, store *RunStore, opts Options) *Manager {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		source: source,
		dest:   dest,
		store:  store,
		opts:   opts,
	}
}

// Store returns the run history store, or nil.
func (m *Manager) Store() *RunStore {
	return m.store
}

// Running reports whether a run is reserved or executing.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Wait blocks until every reserved run has finished executing, including runs
// started in the background by the API.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// PendingRun is a reserved run slot. Execute must be called exactly once to
// release it.
type PendingRun struct {
	m      *Manager
	record *RunRecord
}

// ID returns the run ID assigned at reservation.
func (p *PendingRun) ID() string {
	return p.record.ID
}

// Execute performs the reserved run and releases the slot.
func (p *PendingRun) Execute(ctx context.Context) (*RunRecord, error) {
	defer func() {
		p.m.running.Store(false)
		p.m.mu.Unlock()
		p.m.wg.Done()
	}()
	return p.m.execute(ctx, p.record)
}

// Begin reserves the manager for one run, returning ErrRunInProgress when
// another run holds it.
func (m *Manager) Begin(trigger string) (*PendingRun, error) {
	if !m.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	m.running.Store(true)
	m.wg.Add(1)

	return &PendingRun{
		m: m,
		record: &RunRecord{
			ID:              uuid.New().String(),
			Trigger:         trigger,
			Status:          StatusRunning,
			DestinationType: m.dest.Type(),
			StartedAt:       m.opts.Clock(),
		},
	}, nil
}

// Run performs one complete backup. Root and page failures are reported in
// the returned record; an error means the run could not start or could not
// create its top-level folder.
func (m *Manager) Run(ctx context.Context, trigger string) (*RunRecord, error) {
	pending, err := m.Begin(trigger)
	if err != nil {
		return nil, err
	}
	return pending.Execute(ctx)
}

func (m *Manager) execute(ctx context.Context, record *RunRecord) (*RunRecord, error) {
	logger := logging.L().With("run_id", record.ID, "trigger", record.Trigger)
	logger.Info("backup_started", "destination", record.DestinationType)
	m.save(ctx, record)

	m.printf("Starting Notion backup...\n")

	pages, err := m.source.ListAllPages(ctx)
	if err != nil {
		return m.fail(ctx, record, fmt.Errorf("failed to list pages: %w", err))
	}
	record.PagesFound = len(pages)

	forest := tree.Build(Records(pages))
	record.Cycles = len(forest.Cycles)
	record.Duplicates = len(forest.Duplicates)
	if len(forest.Cycles) > 0 {
		logger.Warn("parent_cycles_broken", "page_ids", forest.Cycles)
	}
	if len(forest.Duplicates) > 0 {
		logger.Warn("duplicate_pages", "page_ids", forest.Duplicates)
	}
	logger.Info("page_tree_built", "pages", forest.Len(), "roots", len(forest.Roots))

	m.printf("Found %d root pages\n", len(forest.Roots))

	writer := mirror.NewWriter(m.dest, m.source,
		mirror.WithOutput(m.opts.Output),
		mirror.WithClock(m.opts.Clock),
		mirror.WithFolderPrefix(m.opts.FolderPrefix),
	)

	summary, err := writer.WriteForest(ctx, forest, m.opts.RootID)
	record.FolderName = summary.FolderName
	record.FolderID = summary.FolderID
	if err != nil {
		return m.fail(ctx, record, err)
	}

	record.RootsSucceeded = summary.Succeeded
	record.RootsFailed = summary.Failed
	record.PagesUploaded = summary.PagesUploaded
	record.ContentFailures = summary.ContentFailures
	record.PageFailures = summary.PageFailures
	record.Pages = PageRecords(summary.Roots)

	record.Status = StatusCompleted
	if summary.Failed > 0 || summary.ContentFailures > 0 || summary.PageFailures > 0 {
		record.Status = StatusPartial
	}
	finished := summary.FinishedAt
	record.FinishedAt = &finished

	m.save(ctx, record)
	if m.store != nil {
		if err := m.store.SavePages(ctx, record.ID, record.Pages); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to record page results: %v", err)
		}
	}

	if m.store != nil && m.opts.HistoryRetention > 0 {
		if _, err := NewRetentionManager(m.store).EnforceRetention(context.WithoutCancel(ctx), m.opts.HistoryRetention); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to prune run history: %v", err)
		}
	}

	logger.Info("backup_finished",
		"status", record.Status,
		"folder", record.FolderName,
		"roots_succeeded", record.RootsSucceeded,
		"roots_failed", record.RootsFailed,
		"pages_uploaded", record.PagesUploaded,
	)
	return record, nil
}

func (m *Manager) fail(ctx context.Context, record *RunRecord, err error) (*RunRecord, error) {
	record.Status = StatusFailed
	record.ErrorMessage = err.Error()
	finished := m.opts.Clock()
	record.FinishedAt = &finished
	m.save(ctx, record)

	m.printf("Backup failed: %v\n", err)
	logging.L().Error("backup_failed", "run_id", record.ID, "error", err)
	return record, err
}

// save records history without letting a database problem fail the run.
func (m *Manager) save(ctx context.Context, record *RunRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(context.WithoutCancel(ctx), record); err != nil {
		log.Printf("[BackupMgr] Warning: Failed to record run %s: %v", record.ID, err)
	}
}

func (m *Manager) printf(format string, args ...any) {
	fmt.Fprintf(m.opts.Output, format, args...)
}

// Records converts listed pages into tree records.
func Records(pages []notion.Page) []tree.Record {
	records := make([]tree.Record, 0, len(pages))
	for _, page := range pages {
		records = append(records, tree.Record{
			ID:       page.ID,
			Title:    page.Title,
			ParentID: page.ParentID,
		})
	}
	return records
}

// PageRecords flattens mirror results depth-first.
func PageRecords(roots []mirror.NodeResult) []PageRecord {
	var pages []PageRecord
	var visit func(result mirror.NodeResult, parentID string, depth int)
	visit = func(result mirror.NodeResult, parentID string, depth int) {
		page := PageRecord{
			PageID:        result.DocumentID,
			ParentPageID:  parentID,
			Title:         result.Title,
			ContainerName: result.ContainerName,
			ContainerID:   result.ContainerID,
			ArtifactID:    result.ArtifactID,
			Depth:         depth,
		}
		if !result.OK() {
			page.ErrorMessage = result.Err.Error()
		}
		if result.ContentErr != nil {
			page.ContentError = result.ContentErr.Error()
		}
		pages = append(pages, page)
		for _, child := range result.Children {
			visit(child, result.DocumentID, depth+1)
		}
	}
	for _, root := range roots {
		visit(root, "", 0)
	}
	return pages
}
