package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/annosuite/annotator/internal/annotation"
	"github.com/annosuite/annotator/internal/asset"
	"github.com/annosuite/annotator/internal/auth"
	"github.com/annosuite/annotator/internal/collab"
	"github.com/annosuite/annotator/internal/config"
	"github.com/annosuite/annotator/internal/db"
	"github.com/annosuite/annotator/internal/export"
	mw "github.com/annosuite/annotator/internal/middleware"
	"github.com/annosuite/annotator/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, log, cfg.DatabaseURL)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	opts := cfg.EngineOptions(log)
	validator := auth.NewValidator(cfg.JWTSecret)

	hub := collab.NewHub(log, st, opts)
	go hub.Run()

	assetHandler, err := asset.NewHandler(log, cfg.AssetDir)
	if err != nil {
		log.Error("asset storage", "error", err)
		os.Exit(1)
	}
	exportHandler := export.NewHandler(log)
	annotationHandler := annotation.NewHandler(log, st, assetHandler, opts)

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Page images
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	// Export works on submitted state and needs no account.
	r.HandleFunc("/export/pdf", exportHandler.ExportPDF).Methods("POST", "OPTIONS")
	r.HandleFunc("/export/commands", exportHandler.Commands).Methods("POST", "OPTIONS")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(validator.Middleware)

	api.HandleFunc("/files/{fileId}/annotations", annotationHandler.Get).Methods("GET")
	api.HandleFunc("/files/{fileId}/annotations", annotationHandler.Put).Methods("PUT")
	api.HandleFunc("/files/{fileId}/pages/{page}/preview", annotationHandler.Preview).Methods("GET")
	api.HandleFunc("/assets/{assetId}", func(w http.ResponseWriter, r *http.Request) {
		if err := assetHandler.Delete(mux.Vars(r)["assetId"]); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, asset.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")

	r.Handle("/ws/files/{fileId}", collab.NewHandler(hub, validator, cfg.Origins()))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down server")

		// Stop the hub first so open sessions reach the store.
		hub.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", "addr", addr, "units", cfg.DefaultUnit)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore connects to Postgres when a database URL is configured and
// falls back to process memory otherwise.
func openStore(ctx context.Context, log *slog.Logger, databaseURL string) (store.Store, func(), error) {
	if databaseURL == "" {
		log.Warn("DATABASE_URL not set, annotations are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
	pool, err := db.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	pg, err := store.NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}
