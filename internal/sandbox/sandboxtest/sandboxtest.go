// Package sandboxtest runs a live sandbox backend for tests.
package sandboxtest

import (
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/bc2as/internal/recordstore"
	"github.com/starford/bc2as/internal/sandbox"
)

// Default credentials accepted by a test sandbox.
const (
	Username = "admin"
	Password = "admin"
)

// Server is a running sandbox backed by a SQLite file.
type Server struct {
	URL string
	DB  *recordstore.DB

	srv  *httptest.Server
	once sync.Once
}

// Start serves a sandbox over the database at dbPath. An empty dbPath uses a
// fresh file in t.TempDir(). Starting again on the same path sees the
// records of earlier servers.
func Start(t *testing.T, dbPath string) *Server {
	t.Helper()
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "sandbox.db")
	}
	db, err := recordstore.Open(dbPath)
	if err != nil {
		t.Fatalf("sandboxtest: open: %v", err)
	}
	svc := sandbox.NewService(db, sandbox.Credentials{Username: Username, Password: Password})
	srv := httptest.NewServer(sandbox.NewRouter(svc))

	s := &Server{URL: srv.URL, DB: db, srv: srv}
	t.Cleanup(s.Close)
	return s
}

// Close stops the server and closes the database. It is safe to call twice.
func (s *Server) Close() {
	s.once.Do(func() {
		s.srv.Close()
		s.DB.Close()
	})
}
