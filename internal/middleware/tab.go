package middleware

import (
	"net/http"

	"finitefield.org/storefront/internal/platform/requestctx"
)

const maxTabIDLen = 64

// Tab copies the tab id from the X-Tab-ID header, or the tab query parameter for
// clients that cannot set headers such as EventSource, into the request context.
// Malformed ids are dropped.
func Tab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestctx.TabHeader)
		if id == "" {
			id = r.URL.Query().Get("tab")
		}
		if validTabID(id) {
			r = r.WithContext(requestctx.WithTab(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func validTabID(id string) bool {
	if id == "" || len(id) > maxTabIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
