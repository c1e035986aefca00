package middleware

import (
	"net/http"

	"github.com/oklog/ulid/v2"
)

const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// RequestID propagates an incoming X-Request-ID or assigns a new ULID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), id)))
	})
}
