package destination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type fakeDrive struct {
	mu      sync.Mutex
	folders []drive.File
	uploads int
	creates int
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		q := r.URL.Query().Get("q")
		var matches []*drive.File
		for i := range f.folders {
			folder := f.folders[i]
			expected := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
				escapeQuery(folder.Name), escapeQuery(folder.Parents[0]), FolderMimeType)
			if q == expected {
				matches = append(matches, &folder)
			}
		}
		json.NewEncoder(w).Encode(&drive.FileList{Files: matches})

	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "upload"):
		io.Copy(io.Discard, r.Body)
		f.uploads++
		json.NewEncoder(w).Encode(&drive.File{Id: fmt.Sprintf("file-%d", f.uploads)})

	case r.Method == http.MethodPost:
		var file drive.File
		if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.creates++
		file.Id = fmt.Sprintf("folder-%d", f.creates)
		f.folders = append(f.folders, file)
		json.NewEncoder(w).Encode(&drive.File{Id: file.Id})

	default:
		http.Error(w, "unexpected request", http.StatusMethodNotAllowed)
	}
}

func newFakeDriveStore(t *testing.T) (*DriveStore, *fakeDrive) {
	t.Helper()
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("create drive service: %v", err)
	}
	return NewDriveStoreWithService(service), fake
}

func TestDriveStoreFindOrCreateIsIdempotent(t *testing.T) {
	store, fake := newFakeDriveStore(t)
	ctx := context.Background()

	first, err := store.FindOrCreateContainer(ctx, "Roadmap_20260101", "root-folder")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := store.FindOrCreateContainer(ctx, "Roadmap_20260101", "root-folder")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first != second {
		t.Fatalf("expected same folder id, got %q and %q", first, second)
	}
	if fake.creates != 1 {
		t.Fatalf("expected one folder to be created, got %d", fake.creates)
	}
}

func TestDriveStoreDistinguishesParents(t *testing.T) {
	store, fake := newFakeDriveStore(t)
	ctx := context.Background()

	a, err := store.FindOrCreateContainer(ctx, "Same", "parent-a")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.FindOrCreateContainer(ctx, "Same", "parent-b")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a == b || fake.creates != 2 {
		t.Fatalf("expected separate folders per parent, got %q and %q", a, b)
	}
}

func TestDriveStoreUpload(t *testing.T) {
	store, fake := newFakeDriveStore(t)

	id, err := store.Upload(context.Background(), "folder-1", "page_content.json", strings.NewReader(`{}`), "application/json")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id == "" || fake.uploads != 1 {
		t.Fatalf("expected one upload, got id=%q uploads=%d", id, fake.uploads)
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery(`Bob's \ notes`); got != `Bob\'s \\ notes` {
		t.Fatalf("unexpected escape result %q", got)
	}
}
