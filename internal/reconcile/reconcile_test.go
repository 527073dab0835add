package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/bc2as/internal/apperr"
	"github.com/starford/bc2as/internal/archivesspace"
	"github.com/starford/bc2as/internal/derive"
	"github.com/starford/bc2as/internal/models"
	"github.com/starford/bc2as/internal/prompt"
	"github.com/starford/bc2as/internal/recordstore"
	"github.com/starford/bc2as/internal/sandbox/sandboxtest"
	"github.com/starford/bc2as/internal/storage"
	"github.com/starford/bc2as/internal/testutil"
)

var (
	discard  = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedNow = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
)

var files = []testutil.FileEntry{
	{Name: "a.pdf", Size: 1048576, Modified: "2020-05-01T09:00:00Z"},
	{Name: "b.pdf", Size: 524288, Modified: "2020-05-20T17:45:00Z"},
}

// writeTree creates root/RC1/Project A with four datasets: one with DFXML,
// one relying on siegfried, one missing siegfried and one with a broken
// timestamp.
func writeTree(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	repo := filepath.Join(root, "RC1")
	testutil.WriteDataset(t, repo, "Project A", "DS001_disk", testutil.Dataset{
		Siegfried: testutil.SiegfriedCSV(files...),
		Formats:   testutil.FormatsCSV(models.FormatCount{Format: "PDF", Count: 2}),
		DFXML:     testutil.DFXML(true, "2018-11-30T23:59:59Z", "2019-02-01T00:00:00Z"),
	})
	testutil.WriteDataset(t, repo, "Project A", "DS002_usb", testutil.Dataset{
		Siegfried: testutil.SiegfriedCSV(files...),
	})
	testutil.WriteDataset(t, repo, "Project A", "DS003_cd", testutil.Dataset{
		DFXML: testutil.DFXML(false, "2020-01-01T00:00:00Z"),
	})
	testutil.WriteDataset(t, repo, "Project A", "DS004_zip", testutil.Dataset{
		Siegfried: testutil.SiegfriedCSV(testutil.FileEntry{Name: "x", Size: 1, Modified: "unknown"}),
	})
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

func connect(t *testing.T, url string) *archivesspace.Client {
	t.Helper()
	c, err := archivesspace.New(url)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Authenticate(context.Background(), sandboxtest.Username, sandboxtest.Password); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return c
}

func newReconciler(backend Backend, store storage.Provider, fallback, createRepo bool) *Reconciler {
	engine := derive.NewEngine(store, prompt.Always(fallback), discard)
	return New(backend, engine, store, prompt.Always(createRepo),
		WithLogger(discard),
		WithCreatedBy("Tester"),
		WithClock(fixedNow))
}

func count(t *testing.T, db *recordstore.DB, kind recordstore.Kind) int {
	t.Helper()
	n, err := db.Count(kind)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSyncRepository_BuildsHierarchy(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	r := newReconciler(connect(t, srv.URL), store, true, true)

	sum, err := r.SyncRepository(context.Background(), "RC1")
	if err != nil {
		t.Fatalf("SyncRepository: %v", err)
	}
	want := Summary{
		RepositoriesCreated: 1,
		ResourcesCreated:    1,
		ParentsCreated:      1,
		DatasetsCreated:     2,
		DatasetsFailed:      2,
	}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}

	repos, _ := srv.DB.Repositories()
	if len(repos) != 1 || repos[0].RepoCode != "RC1" {
		t.Fatalf("repositories = %+v", repos)
	}
	parents, _ := srv.DB.FindByRefID(repos[0].ID, recordstore.KindArchivalObject, "Project_A")
	if len(parents) != 1 {
		t.Fatalf("parents = %+v", parents)
	}
	kids, _ := srv.DB.Children(parents[0].ID)
	if len(kids) != 2 {
		t.Fatalf("children = %d, want 2", len(kids))
	}

	var child struct {
		Title string `json:"title"`
		Dates []struct {
			Begin      string `json:"begin"`
			End        string `json:"end"`
			Expression string `json:"expression"`
		} `json:"dates"`
		Extents []struct {
			Number string `json:"number"`
		} `json:"extents"`
		Notes []struct {
			Type    string   `json:"type"`
			Content []string `json:"content"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(kids[0].Body, &child); err != nil {
		t.Fatal(err)
	}
	if child.Title != "DS001" || child.Dates[0].Expression != "2018-11–2019-02" || child.Extents[0].Number != "1.5" {
		t.Errorf("first child = %+v", child)
	}
	if len(child.Notes) != 2 || child.Notes[0].Content[0] != "Number of PDF: 2" || !strings.Contains(child.Notes[1].Content[0], "Tester") {
		t.Errorf("notes = %+v", child.Notes)
	}
	if err := json.Unmarshal(kids[1].Body, &child); err != nil {
		t.Fatal(err)
	}
	if child.Title != "DS002" || child.Dates[0].Expression != "2020" || child.Dates[0].Begin != "2020-05-01" {
		t.Errorf("second child = %+v", child)
	}
}

func TestSync_RepeatRunReusesHierarchy(t *testing.T) {
	_, store := writeTree(t)
	dbPath := filepath.Join(t.TempDir(), "persist.db")

	first := sandboxtest.Start(t, dbPath)
	if _, err := newReconciler(connect(t, first.URL), store, true, true).SyncRepository(context.Background(), "RC1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first.Close()

	second := sandboxtest.Start(t, dbPath)
	sum, err := newReconciler(connect(t, second.URL), store, true, false).SyncRepository(context.Background(), "RC1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.RepositoriesCreated != 0 || sum.RepositoriesReused != 1 {
		t.Errorf("repositories: %+v", sum)
	}
	if sum.ResourcesCreated != 0 || sum.ParentsCreated != 0 || sum.ParentsReused != 1 {
		t.Errorf("projects: %+v", sum)
	}

	repos, _ := second.DB.Repositories()
	if len(repos) != 1 {
		t.Errorf("repositories = %d, want 1", len(repos))
	}
	if n := count(t, second.DB, recordstore.KindResource); n != 1 {
		t.Errorf("resources = %d, want 1", n)
	}
	parents, _ := second.DB.FindByRefID(repos[0].ID, recordstore.KindArchivalObject, "Project_A")
	if len(parents) != 1 {
		t.Errorf("parents = %d, want 1", len(parents))
	}
	// Child records are not deduplicated between runs.
	kids, _ := second.DB.Children(parents[0].ID)
	if len(kids) != 4 {
		t.Errorf("children = %d, want 4", len(kids))
	}
}

func TestEnsureRepository_Refused(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	r := newReconciler(connect(t, srv.URL), store, true, false)

	_, err := r.SyncRepository(context.Background(), "RC1")
	if !errors.Is(err, ErrRepositoryRefused) {
		t.Fatalf("expected ErrRepositoryRefused, got %v", err)
	}
	if repos, _ := srv.DB.Repositories(); len(repos) != 0 {
		t.Errorf("repository created despite refusal: %+v", repos)
	}
}

func TestEnsureProject_RelinksMissingResource(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	client := connect(t, srv.URL)
	r := newReconciler(client, store, true, true)
	ctx := context.Background()

	repoURI, created, err := r.EnsureRepository(ctx, "RC1")
	if err != nil || !created {
		t.Fatalf("EnsureRepository = %q, %v, %v", repoURI, created, err)
	}
	orphan := &recordstore.Record{RepoID: 1, Kind: recordstore.KindArchivalObject, RefID: "Project_A",
		Body: []byte(`{"jsonmodel_type":"archival_object","title":"Project A","level":"file","resource":{"ref":"/repositories/1/resources/41"}}`)}
	if err := srv.DB.InsertRecord(orphan); err != nil {
		t.Fatal(err)
	}

	p, err := r.EnsureProject(ctx, repoURI, "Project A")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if p.State != StateWithoutResource || p.ParentURI != orphan.URI() {
		t.Fatalf("project = %+v", p)
	}
	obj, err := client.ArchivalObject(ctx, orphan.URI())
	if err != nil {
		t.Fatal(err)
	}
	if obj.ResourceRef() != p.ResourceURI {
		t.Errorf("parent resource = %q, want %q", obj.ResourceRef(), p.ResourceURI)
	}

	again, err := r.EnsureProject(ctx, repoURI, "Project A")
	if err != nil {
		t.Fatal(err)
	}
	if again.State != StateWithResource || again.ResourceURI != p.ResourceURI {
		t.Errorf("second EnsureProject = %+v", again)
	}
	if n := count(t, srv.DB, recordstore.KindResource); n != 1 {
		t.Errorf("resources = %d, want 1", n)
	}
}

func TestSyncDataset_FallbackDeclinedSkips(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	r := newReconciler(connect(t, srv.URL), store, false, true)

	sum, err := r.SyncRepository(context.Background(), "RC1")
	if err != nil {
		t.Fatal(err)
	}
	// DS002 and DS004 are skipped at the fallback question; DS003 has no siegfried.csv.
	if sum.DatasetsCreated != 1 || sum.DatasetsSkipped != 2 || sum.DatasetsFailed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

// flakyBackend fails the first children post.
type flakyBackend struct {
	*archivesspace.Client
	calls int
}

func (f *flakyBackend) CreateChildren(ctx context.Context, parentURI string, children ...archivesspace.ChildObjectDraft) (json.RawMessage, error) {
	f.calls++
	if f.calls == 1 {
		return nil, &apperr.RemoteCallError{Method: "POST", Path: parentURI + "/children", StatusCode: 500, Body: `{"error":"boom"}`}
	}
	return f.Client.CreateChildren(ctx, parentURI, children...)
}

func TestSyncDataset_RemoteFailureContinues(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	backend := &flakyBackend{Client: connect(t, srv.URL)}
	r := newReconciler(backend, store, true, true)

	sum, err := r.SyncRepository(context.Background(), "RC1")
	if err != nil {
		t.Fatalf("SyncRepository: %v", err)
	}
	if sum.DatasetsCreated != 1 || sum.DatasetsFailed != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if backend.calls != 2 {
		t.Errorf("children posts = %d, want 2", backend.calls)
	}
}

// expiredBackend answers every children post as ArchivesSpace does once the
// session has expired.
type expiredBackend struct {
	*archivesspace.Client
	calls int
}

func (b *expiredBackend) CreateChildren(_ context.Context, parentURI string, _ ...archivesspace.ChildObjectDraft) (json.RawMessage, error) {
	b.calls++
	return nil, &apperr.RemoteCallError{
		Method:     "POST",
		Path:       parentURI + "/children",
		StatusCode: 412,
		Body:       `{"code":"SESSION_EXPIRED","error":"Session timed out"}`,
	}
}

func TestSyncDataset_SessionLossAborts(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	backend := &expiredBackend{Client: connect(t, srv.URL)}
	r := newReconciler(backend, store, true, true)

	sum, err := r.SyncRepository(context.Background(), "RC1")
	if err == nil {
		t.Fatalf("expected session error, summary = %+v", sum)
	}
	if !apperr.IsSessionLost(err) {
		t.Errorf("err = %v, want a lost-session RemoteCallError", err)
	}
	if backend.calls != 1 {
		t.Errorf("children posts = %d, want 1", backend.calls)
	}
	if sum.DatasetsCreated != 0 || sum.DatasetsFailed != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSyncDataset_RejectedSessionAborts(t *testing.T) {
	_, store := writeTree(t)
	srv := sandboxtest.Start(t, "")
	client := connect(t, srv.URL)
	r := newReconciler(client, store, true, true)

	uri, _, err := r.EnsureRepository(context.Background(), "RC1")
	if err != nil {
		t.Fatal(err)
	}
	p, err := r.EnsureProject(context.Background(), uri, "Project A")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh client that never logged in stands in for a dead session.
	stale, err := archivesspace.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	r.backend = stale
	if _, err := r.SyncDataset(context.Background(), p, "RC1/Project A/DS001_disk"); !apperr.IsSessionLost(err) {
		t.Errorf("err = %v, want a lost-session RemoteCallError", err)
	}
}

func TestSyncRoot(t *testing.T) {
	root, store := writeTree(t)
	testutil.WriteDataset(t, filepath.Join(root, "RC2"), "Other", "X1_a", testutil.Dataset{
		Siegfried: testutil.SiegfriedCSV(files...),
		DFXML:     testutil.DFXML(false, "2021-01-10T00:00:00Z", "2021-06-02T00:00:00Z"),
	})
	srv := sandboxtest.Start(t, "")
	r := newReconciler(connect(t, srv.URL), store, true, true)

	sum, err := r.SyncRoot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.RepositoriesCreated != 2 || sum.ParentsCreated != 2 || sum.DatasetsCreated != 3 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSurvey(t *testing.T) {
	_, store := writeTree(t)
	tree, err := Survey(store, []string{"RC1"}, storage.DefaultExclude)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Datasets() != 4 {
		t.Errorf("datasets = %d, want 4", tree.Datasets())
	}
	var buf bytes.Buffer
	tree.Render(&buf)
	out := buf.String()
	for _, want := range []string{"Repository RC1", "Project Project A (ref_id Project_A, 4 datasets)", "    DS003_cd"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if paths := tree.Paths(); len(paths) != 4 || paths[0] != "RC1/Project A/DS001_disk" {
		t.Errorf("Paths = %v", paths)
	}

	empty, _ := storage.NewFS(t.TempDir())
	if _, err := Survey(empty, []string{""}, nil); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("empty tree err = %v", err)
	}
}

func TestRefID(t *testing.T) {
	if got := RefID("Smith Family Papers"); got != "Smith_Family_Papers" {
		t.Errorf("RefID = %q", got)
	}
}
