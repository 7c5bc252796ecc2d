package mirror

import (
	"fmt"
	"io"
	"time"
)

// ContainerMapping maps a source document ID to the destination container
// created for it during one run.
type ContainerMapping map[string]string

// NodeResult is the outcome of mirroring one page.
type NodeResult struct {
	DocumentID    string
	Title         string
	ContainerName string
	ContainerID   string
	ArtifactID    string

	// Err is set when the page's folder could not be resolved; the subtree
	// was skipped.
	Err error

	// ContentErr is set when the page's content snapshot was not written.
	ContentErr error

	Children []NodeResult
}

// OK reports whether the page's folder exists in the destination.
func (r NodeResult) OK() bool {
	return r.Err == nil
}

// Count returns the number of pages in this result's subtree.
func (r NodeResult) Count() int {
	n := 1
	for _, child := range r.Children {
		n += child.Count()
	}
	return n
}

// Summary aggregates a run.
type Summary struct {
	FolderName string
	FolderID   string
	StartedAt  time.Time
	FinishedAt time.Time

	// Succeeded and Failed count root pages only.
	Succeeded int
	Failed    int

	PagesUploaded   int
	ContentFailures int
	PageFailures    int

	Roots      []NodeResult
	Containers ContainerMapping
}

// Print writes the end-of-run report.
func (s *Summary) Print(out io.Writer) {
	fmt.Fprintf(out, "\nBackup completed!\n")
	fmt.Fprintf(out, "Successfully backed up: %d root pages and their subpages\n", s.Succeeded)
	fmt.Fprintf(out, "Failed to backup: %d root pages\n", s.Failed)
	fmt.Fprintf(out, "Backup folder: %s\n", s.FolderName)
}
