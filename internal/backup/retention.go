package backup

import (
	"context"
	"fmt"
	"log"
)

// RetentionManager prunes run history. It never touches the destination:
// backup folders are left for their owner to manage.
type RetentionManager struct {
	store *RunStore
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(store *RunStore) *RetentionManager {
	return &RetentionManager{store: store}
}

// EnforceRetention keeps the newest keep runs and deletes older history.
// keep <= 0 keeps everything. Runs still in progress are never removed.
func (rm *RetentionManager) EnforceRetention(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	runs, err := rm.store.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list backup runs: %w", err)
	}

	if len(runs) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, run := range runs[keep:] {
		if run.Status == StatusRunning {
			continue
		}
		if err := rm.store.Delete(ctx, run.ID); err != nil {
			log.Printf("[Retention] Error deleting run %s: %v", run.ID, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Printf("[Retention] Pruned %d backup runs from history (keep %d)", deleted, keep)
	}
	return deleted, nil
}
