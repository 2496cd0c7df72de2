package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
)

// newFileServer serves pushed file content by URL path, standing in for the
// git side's transient upload host.
func newFileServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestReconciler(t *testing.T, backend *fakeBackend) *Reconciler {
	t.Helper()
	downloader, err := NewDownloader(DownloaderOptions{Filesystem: memfs.New()})
	if err != nil {
		t.Fatalf("NewDownloader: %v", err)
	}
	reconciler, err := NewReconciler(backend, backend, downloader)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return reconciler
}

func TestPlanSeparatesUpsertsAndDeletes(t *testing.T) {
	backend := newFakeBackend("proj-1", 1)
	r := newTestReconciler(t, backend)

	existing := []Entity{
		{Path: "/kept.tex", Kind: EntityDoc},
		{Path: "/unchanged.tex", Kind: EntityDoc},
		{Path: "/vanished.tex", Kind: EntityDoc},
		{Path: "/also-gone.png", Kind: EntityFile},
	}
	incoming := []PushFile{
		{Name: "kept.tex", URL: "http://files.test/kept"},
		{Name: "unchanged.tex"},
		{Name: "brand-new.tex", URL: "http://files.test/new"},
	}

	plan := r.Plan(existing, incoming)
	wantUpserts := []PushFile{
		{Name: "kept.tex", URL: "http://files.test/kept"},
		{Name: "brand-new.tex", URL: "http://files.test/new"},
	}
	if !reflect.DeepEqual(plan.Upserts, wantUpserts) {
		t.Fatalf("upserts = %+v, want %+v", plan.Upserts, wantUpserts)
	}
	wantDeletes := []string{"/also-gone.png", "/vanished.tex"}
	if !reflect.DeepEqual(plan.Deletes, wantDeletes) {
		t.Fatalf("deletes = %v, want %v", plan.Deletes, wantDeletes)
	}
}

func TestApplyUpsertsThenDeletes(t *testing.T) {
	server := newFileServer(t, map[string][]byte{
		"/doc":  []byte("line one\nline two"),
		"/blob": {0x89, 0x50, 0x4e, 0x00},
	})
	backend := newFakeBackend("proj-1", 1)
	backend.entities = []Entity{{Path: "/stale.tex", Kind: EntityDoc}}
	r := newTestReconciler(t, backend)

	plan := ReconciliationPlan{
		Upserts: []PushFile{
			{Name: "main.tex", URL: server.URL + "/doc"},
			{Name: "img.dat", URL: server.URL + "/blob"},
		},
		Deletes: []string{"/stale.tex"},
	}
	newVersion, deleteResults, err := r.Apply(context.Background(), "proj-1", plan, map[string]EntityKind{}, "actor-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	lines, ok := backend.docLines("/main.tex")
	if !ok || !reflect.DeepEqual(lines, []string{"line one", "line two"}) {
		t.Fatalf("doc lines = %v ok=%v", lines, ok)
	}
	if _, ok := backend.fileContent("/img.dat"); !ok {
		t.Fatal("binary content not stored as file")
	}
	if got := backend.deletedPaths(); !reflect.DeepEqual(got, []string{"/stale.tex"}) {
		t.Fatalf("deleted = %v", got)
	}
	if len(deleteResults) != 1 || deleteResults[0].Err != nil {
		t.Fatalf("delete results = %+v", deleteResults)
	}
	// Three mutations on top of version 1.
	if newVersion != 4 {
		t.Fatalf("newVersion = %d, want 4", newVersion)
	}
}

func TestApplyDeleteFailureIsBestEffort(t *testing.T) {
	backend := newFakeBackend("proj-1", 1)
	backend.entities = []Entity{
		{Path: "/a.tex", Kind: EntityDoc},
		{Path: "/b.tex", Kind: EntityDoc},
	}
	backend.deleteErrs = map[string]error{"/a.tex": ErrNotFound}
	r := newTestReconciler(t, backend)

	plan := ReconciliationPlan{Deletes: []string{"/a.tex", "/b.tex"}}
	_, deleteResults, err := r.Apply(context.Background(), "proj-1", plan, map[string]EntityKind{}, "actor-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(deleteResults) != 2 {
		t.Fatalf("delete results = %+v", deleteResults)
	}
	if deleteResults[0].Err == nil {
		t.Fatal("expected first delete to report its error")
	}
	// The failure on /a.tex must not stop /b.tex from going.
	if got := backend.deletedPaths(); !reflect.DeepEqual(got, []string{"/b.tex"}) {
		t.Fatalf("deleted = %v", got)
	}
}

func TestApplyUpsertFailureAborts(t *testing.T) {
	server := newFileServer(t, map[string][]byte{})
	backend := newFakeBackend("proj-1", 1)
	backend.entities = []Entity{{Path: "/stale.tex", Kind: EntityDoc}}
	r := newTestReconciler(t, backend)

	plan := ReconciliationPlan{
		Upserts: []PushFile{{Name: "missing.tex", URL: server.URL + "/nope"}},
		Deletes: []string{"/stale.tex"},
	}
	if _, _, err := r.Apply(context.Background(), "proj-1", plan, map[string]EntityKind{}, "actor-1"); err == nil {
		t.Fatal("expected apply to fail on download error")
	}
	if got := backend.deletedPaths(); len(got) != 0 {
		t.Fatalf("deletes ran after failed upsert: %v", got)
	}
}

func TestApplyStickyBinaryUsesUpsertFile(t *testing.T) {
	server := newFileServer(t, map[string][]byte{"/text": []byte("perfectly valid text")})
	backend := newFakeBackend("proj-1", 1)
	r := newTestReconciler(t, backend)

	plan := ReconciliationPlan{
		Upserts: []PushFile{{Name: "was-binary.txt", URL: server.URL + "/text"}},
	}
	existingKinds := map[string]EntityKind{"/was-binary.txt": EntityFile}
	if _, _, err := r.Apply(context.Background(), "proj-1", plan, existingKinds, "actor-1"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := backend.fileContent("/was-binary.txt"); !ok {
		t.Fatal("sticky binary path should be stored via UpsertFile")
	}
	if _, ok := backend.docLines("/was-binary.txt"); ok {
		t.Fatal("sticky binary path must not become a doc")
	}
}
