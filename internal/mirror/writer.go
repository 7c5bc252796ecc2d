// Package mirror writes a page forest into a destination as nested folders,
// one JSON content snapshot per page.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/TheGojiOG/notion-backup/internal/logging"
	"github.com/TheGojiOG/notion-backup/internal/tree"
)

const (
	DefaultFolderPrefix = "Notion_Backup"

	untitled        = "Untitled"
	contentType     = "application/json"
	dateLayout      = "20060102"
	timestampLayout = "20060102_150405"
)

// Destination is the part of a storage backend the writer needs.
type Destination interface {
	FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error)
}

// ContentSource returns a page's content in the source's native structure.
// The value is serialized as-is.
type ContentSource interface {
	PageContent(ctx context.Context, pageID string) (any, error)
}

// Writer mirrors forests into a destination.
type Writer struct {
	dest         Destination
	content      ContentSource
	out          io.Writer
	now          func() time.Time
	folderPrefix string
}

// Option configures a Writer.
type Option func(*Writer)

// WithOutput sets where progress lines are printed. Defaults to io.Discard.
func WithOutput(out io.Writer) Option {
	return func(w *Writer) {
		w.out = out
	}
}

// WithClock replaces time.Now for naming folders and artifacts.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// WithFolderPrefix sets the name prefix of the top-level backup folder.
func WithFolderPrefix(prefix string) Option {
	return func(w *Writer) {
		if prefix != "" {
			w.folderPrefix = prefix
		}
	}
}

// NewWriter creates a Writer.
func NewWriter(dest Destination, content ContentSource, opts ...Option) *Writer {
	w := &Writer{
		dest:         dest,
		content:      content,
		out:          io.Discard,
		now:          time.Now,
		folderPrefix: DefaultFolderPrefix,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteForest runs one mirror pass over forest into a fresh run.
func (w *Writer) WriteForest(ctx context.Context, forest *tree.Forest, rootContainerID string) (*Summary, error) {
	return w.NewRun().Forest(ctx, forest, rootContainerID)
}

// NewRun starts a run with its own container mapping and counters.
func (w *Writer) NewRun() *Run {
	return &Run{
		w: w,
		summary: &Summary{
			Containers: make(ContainerMapping),
		},
	}
}

// Run is a single mirror pass. It is not safe for concurrent use.
type Run struct {
	w       *Writer
	summary *Summary
}

// Forest creates the timestamped top-level folder under rootContainerID and
// mirrors every root into it. Only a failure to create that folder is
// returned; root failures are counted and the loop always continues.
func (r *Run) Forest(ctx context.Context, forest *tree.Forest, rootContainerID string) (*Summary, error) {
	s := r.summary
	s.StartedAt = r.w.now()
	s.FolderName = fmt.Sprintf("%s_%s", r.w.folderPrefix, s.StartedAt.Format(timestampLayout))

	folderID, err := r.w.dest.FindOrCreateContainer(ctx, s.FolderName, rootContainerID)
	if err != nil {
		s.FinishedAt = r.w.now()
		return s, fmt.Errorf("failed to create backup folder '%s': %w", s.FolderName, err)
	}
	s.FolderID = folderID

	total := len(forest.Roots)
	for i, root := range forest.Roots {
		result, err := r.Node(ctx, root, folderID)
		s.Roots = append(s.Roots, result)
		if err != nil {
			s.Failed++
			r.printf("Error backing up root page %d: %v\n", i+1, err)
			continue
		}
		s.Succeeded++
		r.printf("[%d/%d] Backed up: %s\n", i+1, total, result.ContainerName)
	}

	s.FinishedAt = r.w.now()
	s.Print(r.w.out)
	return s, nil
}

// Node mirrors one page and its subtree under parentID.
//
// An error is returned only when the page's own folder cannot be resolved;
// nothing below it is attempted then. Content and descendant failures are
// recorded in the result and do not stop the walk.
func (r *Run) Node(ctx context.Context, node *tree.Node, parentID string) (NodeResult, error) {
	title := node.Record.Title
	if title == "" {
		title = untitled
	}

	result := NodeResult{
		DocumentID:    node.Record.ID,
		Title:         title,
		ContainerName: fmt.Sprintf("%s_%s", title, r.w.now().Format(dateLayout)),
	}

	containerID, err := r.w.dest.FindOrCreateContainer(ctx, result.ContainerName, parentID)
	if err != nil {
		result.Err = fmt.Errorf("failed to create folder '%s': %w", result.ContainerName, err)
		return result, result.Err
	}
	result.ContainerID = containerID
	r.summary.Containers[node.Record.ID] = containerID

	artifactID, err := r.uploadContent(ctx, node.Record.ID, title, containerID)
	if err != nil {
		result.ContentErr = err
		r.summary.ContentFailures++
		r.printf("Error backing up content for page '%s': %v\n", title, err)
		logging.L().Error("page_content_failed", "page_id", node.Record.ID, "title", title, "error", err)
	} else {
		result.ArtifactID = artifactID
		r.summary.PagesUploaded++
	}

	for _, child := range node.Children {
		childResult, err := r.Node(ctx, child, containerID)
		if err != nil {
			r.summary.PageFailures++
			r.printf("Error backing up child page '%s': %v\n", childResult.Title, err)
			logging.L().Error("child_page_failed", "page_id", child.Record.ID, "parent_id", node.Record.ID, "error", err)
		}
		result.Children = append(result.Children, childResult)
	}

	return result, nil
}

func (r *Run) uploadContent(ctx context.Context, pageID, title, containerID string) (string, error) {
	content, err := r.w.content.PageContent(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content: %w", err)
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize content: %w", err)
	}

	name := fmt.Sprintf("%s_content_%s.json", title, r.w.now().Format(timestampLayout))
	r.printf("Uploading content for page '%s'...\n", title)

	id, err := r.w.dest.Upload(ctx, containerID, name, bytes.NewReader(data), contentType)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Run) printf(format string, args ...any) {
	fmt.Fprintf(r.w.out, format, args...)
}
