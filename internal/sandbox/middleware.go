package sandbox

import (
	"net/http"

	"github.com/starford/bc2as/internal/archivesspace"
)

// SessionMiddleware rejects requests without a valid session header.
func SessionMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := svc.Authorize(r.Context(), r.Header.Get(archivesspace.SessionHeader)); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
