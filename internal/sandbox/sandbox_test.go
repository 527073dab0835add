package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/bc2as/internal/archivesspace"
	"github.com/starford/bc2as/internal/recordstore"
)

// testEnv sets up a temp SQLite store, service and router.
func testEnv(t *testing.T) (*recordstore.DB, http.Handler) {
	t.Helper()
	db, err := recordstore.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	svc := NewService(db, Credentials{Username: "admin", Password: "admin"})
	return db, NewRouter(svc)
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

type client struct {
	t       *testing.T
	router  http.Handler
	session string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.session != "" {
		req.Header.Set(archivesspace.SessionHeader, c.session)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c *client) decode(w *httptest.ResponseRecorder, want int, v any) {
	c.t.Helper()
	if w.Code != want {
		c.t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
	if v != nil {
		if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
			c.t.Fatalf("decode: %v: %s", err, w.Body.String())
		}
	}
}

func login(t *testing.T, router http.Handler) *client {
	t.Helper()
	c := &client{t: t, router: router}
	var out struct {
		Session string `json:"session"`
	}
	c.decode(c.do(http.MethodPost, "/users/admin/login?password=admin", nil), http.StatusOK, &out)
	if out.Session == "" {
		t.Fatal("empty session")
	}
	c.session = out.Session
	return c
}

func TestLogin(t *testing.T) {
	_, router := testEnv(t)
	c := &client{t: t, router: router}

	w := c.do(http.MethodPost, "/users/admin/login?password=nope", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("bad password status = %d", w.Code)
	}
	w = c.do(http.MethodPost, "/users/other/login?password=admin", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("bad user status = %d", w.Code)
	}
	login(t, router)
}

func TestSessionRequired(t *testing.T) {
	_, router := testEnv(t)
	c := &client{t: t, router: router}
	if w := c.do(http.MethodGet, "/repositories", nil); w.Code != http.StatusForbidden {
		t.Errorf("no session status = %d", w.Code)
	}
	c.session = "forged"
	if w := c.do(http.MethodGet, "/repositories", nil); w.Code != http.StatusForbidden {
		t.Errorf("forged session status = %d", w.Code)
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	_, router := testEnv(t)
	c := login(t, router)

	var list []RepositoryItem
	c.decode(c.do(http.MethodGet, "/repositories", nil), http.StatusOK, &list)
	if len(list) != 0 {
		t.Fatalf("fresh sandbox has repositories: %+v", list)
	}

	var res CreateResult
	c.decode(c.do(http.MethodPost, "/repositories", archivesspace.NewRepositoryDraft("RC1")), http.StatusOK, &res)
	if res.URI != "/repositories/1" {
		t.Errorf("uri = %q", res.URI)
	}
	if w := c.do(http.MethodPost, "/repositories", archivesspace.NewRepositoryDraft("RC1")); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", w.Code)
	}
	if w := c.do(http.MethodPost, "/repositories", `{"jsonmodel_type":"repository"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing repo_code status = %d", w.Code)
	}

	c.decode(c.do(http.MethodGet, "/repositories", nil), http.StatusOK, &list)
	if len(list) != 1 || list[0].RepoCode != "RC1" || list[0].URI != "/repositories/1" {
		t.Errorf("list = %+v", list)
	}
	var repo RepositoryItem
	c.decode(c.do(http.MethodGet, "/repositories/1", nil), http.StatusOK, &repo)
	if repo.RepoCode != "RC1" {
		t.Errorf("repo = %+v", repo)
	}
}

func TestHierarchyEndpoints(t *testing.T) {
	_, router := testEnv(t)
	c := login(t, router)
	c.decode(c.do(http.MethodPost, "/repositories", archivesspace.NewRepositoryDraft("RC1")), http.StatusOK, nil)

	var resource CreateResult
	draft := archivesspace.NewResourceDraft("Project A", "Project_A", mustDay(t, "2024-01-02"))
	c.decode(c.do(http.MethodPost, "/repositories/1/resources", draft), http.StatusOK, &resource)

	var parent CreateResult
	parentDraft := archivesspace.NewParentObjectDraft("Project A", "Project_A", resource.URI)
	c.decode(c.do(http.MethodPost, "/repositories/1/archival_objects", parentDraft), http.StatusOK, &parent)

	var found struct {
		ArchivalObjects []struct {
			Ref string `json:"ref"`
		} `json:"archival_objects"`
	}
	c.decode(c.do(http.MethodGet, "/repositories/1/find_by_id/archival_objects?ref_id%5B%5D=Project_A", nil), http.StatusOK, &found)
	if len(found.ArchivalObjects) != 1 || found.ArchivalObjects[0].Ref != parent.URI {
		t.Fatalf("find_by_id = %+v", found)
	}
	c.decode(c.do(http.MethodGet, "/repositories/1/find_by_id/archival_objects?ref_id%5B%5D=Nope", nil), http.StatusOK, &found)
	if len(found.ArchivalObjects) != 0 {
		t.Errorf("unexpected match: %+v", found)
	}

	var rec map[string]any
	c.decode(c.do(http.MethodGet, parent.URI, nil), http.StatusOK, &rec)
	if rec["ref_id"] != "Project_A" || rec["uri"] != parent.URI || rec["lock_version"] != float64(0) {
		t.Errorf("record = %v", rec)
	}

	children := map[string]any{
		"jsonmodel_type": "archival_record_children",
		"children": []map[string]any{{
			"jsonmodel_type": "archival_object",
			"title":          "DS001",
			"level":          "file",
			"resource":       map[string]string{"ref": resource.URI},
			"dates":          []map[string]string{{"begin": "2020-05-01", "end": "2020-05-20"}},
		}},
	}
	var added ChildrenResult
	c.decode(c.do(http.MethodPost, parent.URI+"/children", children), http.StatusOK, &added)
	if len(added.Children) != 1 {
		t.Fatalf("children result = %+v", added)
	}
	var child map[string]any
	c.decode(c.do(http.MethodGet, added.Children[0], nil), http.StatusOK, &child)
	if p, _ := child["parent"].(map[string]any); p["ref"] != parent.URI {
		t.Errorf("child parent = %v", child["parent"])
	}
}

func TestChildrenValidation(t *testing.T) {
	_, router := testEnv(t)
	c := login(t, router)
	c.decode(c.do(http.MethodPost, "/repositories", archivesspace.NewRepositoryDraft("RC1")), http.StatusOK, nil)
	var resource, parent CreateResult
	c.decode(c.do(http.MethodPost, "/repositories/1/resources",
		archivesspace.NewResourceDraft("P", "P", mustDay(t, "2024-01-02"))), http.StatusOK, &resource)
	c.decode(c.do(http.MethodPost, "/repositories/1/archival_objects",
		archivesspace.NewParentObjectDraft("P", "P", resource.URI)), http.StatusOK, &parent)

	tests := []struct {
		name string
		body string
	}{
		{"wrong envelope", `{"jsonmodel_type":"archival_object","children":[]}`},
		{"empty", `{"jsonmodel_type":"archival_record_children","children":[]}`},
		{"no title", `{"jsonmodel_type":"archival_record_children","children":[{"level":"file","resource":{"ref":"` + resource.URI + `"}}]}`},
		{"dangling resource", `{"jsonmodel_type":"archival_record_children","children":[{"title":"x","level":"file","resource":{"ref":"/repositories/1/resources/99"}}]}`},
		{"bad date", `{"jsonmodel_type":"archival_record_children","children":[{"title":"x","level":"file","resource":{"ref":"` + resource.URI + `"},"dates":[{"begin":"May 2020"}]}]}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := c.do(http.MethodPost, parent.URI+"/children", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateRecord_RelinksResource(t *testing.T) {
	db, router := testEnv(t)
	c := login(t, router)
	c.decode(c.do(http.MethodPost, "/repositories", archivesspace.NewRepositoryDraft("RC1")), http.StatusOK, nil)

	// An archival object pointing at a resource that no longer exists.
	orphan := &recordstore.Record{RepoID: 1, Kind: recordstore.KindArchivalObject, RefID: "P",
		Body: []byte(`{"jsonmodel_type":"archival_object","title":"P","level":"file","resource":{"ref":"/repositories/1/resources/77"}}`)}
	if err := db.InsertRecord(orphan); err != nil {
		t.Fatal(err)
	}
	if w := c.do(http.MethodGet, "/repositories/1/resources/77", nil); w.Code != http.StatusNotFound {
		t.Fatalf("dangling resource status = %d", w.Code)
	}

	var resource CreateResult
	c.decode(c.do(http.MethodPost, "/repositories/1/resources",
		archivesspace.NewResourceDraft("P", "P", mustDay(t, "2024-01-02"))), http.StatusOK, &resource)

	var rec map[string]any
	c.decode(c.do(http.MethodGet, orphan.URI(), nil), http.StatusOK, &rec)
	rec["resource"] = map[string]string{"ref": resource.URI}

	var updated CreateResult
	c.decode(c.do(http.MethodPost, orphan.URI(), rec), http.StatusOK, &updated)
	if updated.LockVersion != 1 || updated.Status != "Updated" {
		t.Errorf("update = %+v", updated)
	}

	// Replaying the stale lock version is rejected.
	if w := c.do(http.MethodPost, orphan.URI(), rec); w.Code != http.StatusConflict {
		t.Errorf("stale update status = %d", w.Code)
	}

	c.decode(c.do(http.MethodGet, orphan.URI(), nil), http.StatusOK, &rec)
	if res, _ := rec["resource"].(map[string]any); res["ref"] != resource.URI {
		t.Errorf("resource after update = %v", rec["resource"])
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	_, router := testEnv(t)
	c := login(t, router)
	for _, path := range []string{"/repositories/5/resources/1", "/repositories/x/archival_objects/1", "/nowhere"} {
		w := c.do(http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d", path, w.Code)
			continue
		}
		var body errResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Errorf("%s body = %s", path, w.Body.String())
		}
	}
}
