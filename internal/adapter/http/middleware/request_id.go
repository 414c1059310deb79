package middleware

import (
	"net/http"

	"github.com/google/uuid"

	wrap "ridecore/pkg/logger/wrapper"
)

const requestIDHeader = "X-Request-ID"

// RequestID takes the inbound request id or mints one, puts it into the log
// context and echoes it back in the response header.
func (h *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)

		ctx := wrap.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
