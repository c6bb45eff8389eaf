package transport

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// AccessLog writes one zerolog line per request. Client errors are logged at
// warn level and server errors at error level.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			var event *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				event = log.Error()
			case status >= http.StatusBadRequest:
				event = log.Warn()
			default:
				event = log.Info()
			}

			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("remote_ip", r.RemoteAddr).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// BasicAuth rejects requests whose credentials do not match auth. The
// password is checked against a bcrypt hash.
func BasicAuth(realm string, auth config.AuthConfig) func(http.Handler) http.Handler {
	hash := []byte(auth.PasswordHash)
	username := []byte(auth.Username)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok {
				userMatch := subtle.ConstantTimeCompare([]byte(user), username) == 1
				passErr := bcrypt.CompareHashAndPassword(hash, []byte(pass))
				if userMatch && passErr == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("user", user).
				Msg("Rejected request with invalid credentials")

			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized","code":"unauthorized"}`))
		})
	}
}
