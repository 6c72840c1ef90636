package middleware

import (
	"net/http"
	"strings"
)

// ForPathPrefix applies mw only to requests whose path is prefix or lies below it.
func ForPathPrefix(prefix string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == prefix || strings.HasPrefix(r.URL.Path, prefix+"/") {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
