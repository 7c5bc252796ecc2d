package backup

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunStoreSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	record := &RunRecord{
		ID:              "run-1",
		Trigger:         TriggerManual,
		Status:          StatusRunning,
		DestinationType: "drive",
		StartedAt:       started,
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	finished := started.Add(time.Minute)
	record.Status = StatusPartial
	record.FolderName = "Notion_Backup_20260203_040506"
	record.RootsSucceeded = 3
	record.RootsFailed = 1
	record.ErrorMessage = ""
	record.FinishedAt = &finished
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := store.SavePages(ctx, record.ID, []PageRecord{
		{PageID: "p1", Title: "Roadmap", ContainerName: "Roadmap_20260203", ContainerID: "c1", ArtifactID: "f1"},
		{PageID: "p2", ParentPageID: "p1", Title: "Q3", ContainerName: "Q3_20260203", Depth: 1, ErrorMessage: "failed to create folder 'Q3_20260203': denied"},
	}); err != nil {
		t.Fatalf("save pages: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPartial || got.RootsSucceeded != 3 || got.RootsFailed != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("expected started %s, got %s", started, got.StartedAt)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected finished %v", got.FinishedAt)
	}
	if len(got.Pages) != 2 || got.Pages[1].ErrorMessage == "" || got.Pages[0].ErrorMessage != "" {
		t.Fatalf("unexpected pages %+v", got.Pages)
	}
}

func TestRunStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.Save(ctx, &RunRecord{
			ID:              id,
			Trigger:         TriggerScheduled,
			Status:          StatusCompleted,
			DestinationType: "local",
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order %v", runs)
	}
}

func TestRetentionKeepsRunningRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	statuses := []string{StatusRunning, StatusCompleted, StatusFailed, StatusCompleted}
	for i, status := range statuses {
		if err := store.Save(ctx, &RunRecord{
			ID:              string(rune('a' + i)),
			Trigger:         TriggerManual,
			Status:          status,
			DestinationType: "local",
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	deleted, err := NewRetentionManager(store).EnforceRetention(ctx, 1)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "d" || runs[1].ID != "a" {
		t.Fatalf("unexpected remaining runs %v", runs)
	}
}
