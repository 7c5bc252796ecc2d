package tree

import (
	"fmt"
	"testing"
)

func TestBuildEmptyInput(t *testing.T) {
	forest := Build(nil)
	if len(forest.Roots) != 0 {
		t.Fatalf("expected no roots, got %d", len(forest.Roots))
	}
	if forest.Len() != 0 {
		t.Fatalf("expected empty forest, got %d nodes", forest.Len())
	}
}

func TestBuildParentChildAndOrphan(t *testing.T) {
	forest := Build([]Record{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B", ParentID: "a"},
		{ID: "c", Title: "C", ParentID: "missing-id"},
	})

	if len(forest.Roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest.Roots))
	}
	if forest.Roots[0].Record.ID != "a" || forest.Roots[1].Record.ID != "c" {
		t.Fatalf("unexpected root order: %s, %s", forest.Roots[0].Record.ID, forest.Roots[1].Record.ID)
	}
	if len(forest.Roots[0].Children) != 1 || forest.Roots[0].Children[0].Record.ID != "b" {
		t.Fatalf("expected a to have child b")
	}
	if len(forest.Roots[1].Children) != 0 {
		t.Fatalf("expected orphan c to have no children")
	}
}

func TestBuildChildBeforeParent(t *testing.T) {
	forest := Build([]Record{
		{ID: "child", ParentID: "parent"},
		{ID: "parent"},
	})

	if len(forest.Roots) != 1 || forest.Roots[0].Record.ID != "parent" {
		t.Fatalf("expected parent to be the only root")
	}
	if len(forest.Roots[0].Children) != 1 {
		t.Fatalf("expected child to attach regardless of input order")
	}
}

func TestBuildEveryRecordAppearsOnce(t *testing.T) {
	var records []Record
	for i := 0; i < 50; i++ {
		parent := ""
		switch {
		case i%7 == 0:
			parent = ""
		case i%5 == 0:
			parent = fmt.Sprintf("outside-%d", i)
		default:
			parent = fmt.Sprintf("p%d", i/3)
		}
		records = append(records, Record{ID: fmt.Sprintf("p%d", i), ParentID: parent})
	}

	forest := Build(records)

	if forest.Len() != len(records) {
		t.Fatalf("expected %d nodes, got %d", len(records), forest.Len())
	}

	seen := make(map[string]int)
	forest.Walk(func(node *Node, _ int) bool {
		seen[node.Record.ID]++
		return true
	})
	for _, record := range records {
		if seen[record.ID] != 1 {
			t.Fatalf("record %s seen %d times", record.ID, seen[record.ID])
		}
	}
}

func TestBuildRootsForMissingParents(t *testing.T) {
	forest := Build([]Record{
		{ID: "none"},
		{ID: "empty", ParentID: ""},
		{ID: "unknown", ParentID: "not-fetched"},
	})

	if len(forest.Roots) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(forest.Roots))
	}
}

func TestBuildDuplicateLastWins(t *testing.T) {
	forest := Build([]Record{
		{ID: "a", Title: "first"},
		{ID: "b", ParentID: "a"},
		{ID: "a", Title: "second"},
	})

	if len(forest.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(forest.Roots))
	}
	if forest.Roots[0].Record.Title != "second" {
		t.Fatalf("expected last record to win, got %q", forest.Roots[0].Record.Title)
	}
	if len(forest.Duplicates) != 1 || forest.Duplicates[0] != "a" {
		t.Fatalf("expected duplicate a to be reported, got %v", forest.Duplicates)
	}
	if forest.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", forest.Len())
	}
}

func TestBuildBreaksCycles(t *testing.T) {
	forest := Build([]Record{
		{ID: "a", ParentID: "c"},
		{ID: "b", ParentID: "a"},
		{ID: "c", ParentID: "b"},
		{ID: "self", ParentID: "self"},
		{ID: "leaf", ParentID: "b"},
	})

	if forest.Len() != 5 {
		t.Fatalf("expected all 5 records in forest, got %d", forest.Len())
	}
	if len(forest.Cycles) != 2 {
		t.Fatalf("expected 2 cycle breaks, got %v", forest.Cycles)
	}
	if forest.Cycles[0] != "a" || forest.Cycles[1] != "self" {
		t.Fatalf("unexpected cycle breaks: %v", forest.Cycles)
	}
	if len(forest.Roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest.Roots))
	}

	depth := 0
	forest.Walk(func(_ *Node, d int) bool {
		if d > depth {
			depth = d
		}
		return true
	})
	if depth != 2 {
		t.Fatalf("expected a > b > {c, leaf} to have depth 2, got %d", depth)
	}
}

func TestWalkSkipChildren(t *testing.T) {
	forest := Build([]Record{
		{ID: "a"},
		{ID: "b", ParentID: "a"},
	})

	var visited []string
	forest.Walk(func(node *Node, _ int) bool {
		visited = append(visited, node.Record.ID)
		return false
	})
	if len(visited) != 1 || visited[0] != "a" {
		t.Fatalf("expected only a to be visited, got %v", visited)
	}
}
