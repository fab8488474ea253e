package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "github.com/GSA-TTS/FAC-sub003/internal/adapters/http"
	pg "github.com/GSA-TTS/FAC-sub003/internal/adapters/postgres"
	"github.com/GSA-TTS/FAC-sub003/internal/config"
	"github.com/GSA-TTS/FAC-sub003/internal/logging"
	ports "github.com/GSA-TTS/FAC-sub003/internal/ports"
	recsvc "github.com/GSA-TTS/FAC-sub003/internal/services/records"
	resub "github.com/GSA-TTS/FAC-sub003/internal/services/resubmission"
	assignworker "github.com/GSA-TTS/FAC-sub003/internal/workers/assignrunner"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.Env)
	if err != nil {
		log.Warnf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for Postgres adapters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	if err := pg.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate error: %v", err)
	}

	// Wire repositories to services (ports)
	var _ ports.RecordRepository = db
	var _ ports.HistoryRepository = db
	var _ ports.RecordQueries = db
	var _ ports.JobRepository = db

	store := recsvc.New(db)
	decider := resub.New(db, db)
	processor := assignworker.AssignProcessor{Store: store, Baseline: db}

	srv := httpadapter.New(store, decider, db, db, processor, log)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	// Optional background assignment workers
	if cfg.AssignWorkers > 0 {
		go assignworker.Run(ctx, db, processor, cfg.AssignWorkers, cfg.PollInterval, log)
		log.Infof("assignment workers started: %d", cfg.AssignWorkers)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Infof("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("shutting down on %s", sig)
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	}
}
