// Package http provides the plumbing for the optional admin endpoint that
// exposes metrics, health and profiling while a trace runs.
package http

import (
	"context"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ListenAndServe runs the server until ctx is canceled, then shuts it down
// gracefully.
func ListenAndServe(ctx context.Context, s *http.Server) {
	go func() {
		<-ctx.Done()

		if err := s.Shutdown(context.Background()); err != nil {
			logs.Warn(errors.Newf("shutting down the admin server failed").
				WithTag("addr", s.Addr).
				Wrap(err))
		}
	}()

	logs.WithTag("addr", s.Addr).Info("starting admin server")

	switch err := s.ListenAndServe(); err {
	case nil, http.ErrServerClosed, context.Canceled:
		logs.WithTag("addr", s.Addr).Info("stopping admin server")

	default:
		logs.Warn(errors.Newf("admin server stopped").
			WithTag("addr", s.Addr).
			Wrap(err))
	}
}

// MetricsPathFormatter hides paths that did not resolve to a handler from
// the HTTP metrics, keeping scrape noise out of the label space.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}
	return path
}
