package httpapi

import (
	"net/http"
	"strings"
)

// degradedHeader is attached when a request proceeds with an invalid,
// unrefreshable credential; the downstream handler's best-effort remote
// calls will fail gracefully into the memory fallback.
const degradedHeader = "X-Storage-Degraded"

// refreshGatePrefixes are the credential-sensitive route prefixes the
// gate guards.
var refreshGatePrefixes = []string{"/api/books", "/api/profile", "/api/storage"}

// refreshGateExempt lists guarded-prefix paths that must stay reachable
// with a dead credential: manual token submission is the recovery path.
var refreshGateExempt = map[string]bool{
	"/api/storage/token": true,
}

// withRefreshGate guards credential-sensitive routes. A valid credential
// passes through with no I/O. An invalid one triggers a (single-flight)
// refresh; if that fails, storage-prefixed paths are short-circuited with
// a structured reauthorization error while book and profile paths proceed
// in degraded mode.
func (s *Server) withRefreshGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !gateMatches(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if s.creds.Store().IsValid() {
			next.ServeHTTP(w, r)
			return
		}

		if _, ok := s.creds.Refresh(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/storage") {
			writeError(w, http.StatusUnauthorized, codeReauthRequired,
				"storage credential expired, reauthorization required")
			return
		}

		w.Header().Set(degradedHeader, "true")
		next.ServeHTTP(w, r)
	})
}

// gateMatches reports whether the path falls under a guarded prefix and
// is not explicitly exempt.
func gateMatches(path string) bool {
	if refreshGateExempt[path] {
		return false
	}

	for _, prefix := range refreshGatePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
