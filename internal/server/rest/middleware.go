package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/guard"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// instrument logs every request and records it under its route pattern,
// so path parameters do not blow up metric cardinality.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		h.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		h.logger.Info(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// require gates a route group with the access guard and hands the caller's
// identity to the handler through the request context.
func (h *Handler) require(req guard.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := guard.BearerToken(r.Header.Get(common.AuthorizationHeaderName))

			id, err := h.guard.Check(r.Context(), raw, req)
			if err != nil {
				h.fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(guard.WithIdentity(r.Context(), id)))
		})
	}
}
