package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request through logrus.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": chiMiddleware.GetReqID(r.Context()),
				"remote":     r.RemoteAddr,
			})
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				entry.Error("Request failed")
			case ww.Status() >= http.StatusBadRequest:
				entry.Warn("Request rejected")
			default:
				entry.Debug("Request served")
			}
		})
	}
}
