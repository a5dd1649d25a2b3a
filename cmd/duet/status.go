package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/duetlabs/duet"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// serveStatus runs the observability endpoint until the session context is
// cancelled. It only reads session state.
func serveStatus(ctx context.Context, logger *slog.Logger, session *duet.Session, addr string) {
	router := mux.NewRouter()
	router.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"topic":     session.Topic(),
			"exchanges": session.ExchangeCount(),
			"pipeline":  session.PipelineMetrics(),
			"point":     session.PointState(),
			"arcs":      session.ArcStates(),
		})
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    addr,
		Handler: handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(os.Stderr, router)),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("status endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("status endpoint stopped", "error", err)
	}
}
