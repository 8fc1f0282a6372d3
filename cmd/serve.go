package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/stats"
)

// startStatsServer serves counter on port until ctx is done or the returned
// stop function is called. Port 0 disables the server.
func startStatsServer(ctx context.Context, counter *stats.Counter, port int) func() {
	if port <= 0 {
		return func() {}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           stats.NewRouter(counter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("starting stats server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("stats server", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		zap.L().Info("shutting down stats server")
		_ = srv.Shutdown(shutdownCtx)
	}()

	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}
