package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/lectern"
)

// healthChecker is the part of *lectern.Lectern the health route needs.
type healthChecker interface {
	Health(ctx context.Context) ([]lectern.ComponentHealth, error)
}

// newOpsRouter serves /metrics and /healthz for long running commands.
func newOpsRouter(checker healthChecker, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Handle("/metrics", metrics)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		results, err := checker.Health(req.Context())
		status := http.StatusOK
		if err != nil {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		for _, res := range results {
			state := "ok"
			if res.Err != nil {
				state = res.Err.Error()
			}
			fmt.Fprintf(w, "%s: %s\n", res.Name, state)
		}
	})
	return r
}

func serveOps(addr string, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("operations endpoint stopped", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return server
}

func shutdownOps(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
