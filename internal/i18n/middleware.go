package i18n

import (
	"net/http"
)

// Middleware picks a printer from Accept-Language and stores it in the
// request context, so handlers can localize their error messages.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := NewPrinter(MatchLanguage(r.Header.Get("Accept-Language")))
		next.ServeHTTP(w, r.WithContext(WithPrinter(r.Context(), p)))
	})
}
