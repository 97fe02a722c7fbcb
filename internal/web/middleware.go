// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs each request and counts API requests by route.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				// Hijacked by the websocket upgrade.
				status = http.StatusSwitchingProtocols
			}
			route := routePattern(r)
			s.logger.Debug("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"latency", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
			if s.cfg.Metrics != nil && strings.HasPrefix(route, "/api/") {
				s.cfg.Metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// originChecker allows requests without an Origin header, same-origin
// requests, and origins whose host is listed.
func originChecker(allowed []string) func(r *http.Request) bool {
	hosts := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, strings.ToLower(u.Host))
		} else {
			hosts = append(hosts, strings.ToLower(o))
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Host)
		return host == strings.ToLower(r.Host) || slices.Contains(hosts, host)
	}
}
