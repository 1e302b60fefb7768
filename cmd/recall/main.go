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

	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/digest"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/practice"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/sync"
	"github.com/conorfennell/recall/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("recall failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	// 1. Define and parse command-line flags
	fs := config.NewFlagSet("recall")
	addSource := fs.String("add-source", "", "Register a deck directory or git URL and exit")
	runSync := fs.Bool("sync", false, "Sync every deck source and exit")
	practiceMode := fs.Bool("practice", false, "Run a practice session in the terminal")
	mode := fs.String("mode", string(domain.DueThenExtra), "Practice mode: DueOnly or DueThenExtra")
	minutes := fs.Int("minutes", 10, "Practice session length in minutes")
	fs.Bool("serve", true, "Serve the HTTP API (the default action)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Logger(os.Stderr))

	// 2. Open the database
	db, err := storage.Open(cfg.Storage.Path, storage.WithDefaultSettings(cfg.Defaults))
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("Database opened successfully", "path", cfg.Storage.Path)

	switch {
	case *addSource != "":
		_, err := sync.AddSource(ctx, db, *addSource)
		return err
	case *runSync:
		report, err := sync.RunSync(ctx, db, cfg.Sources.ReposDir, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources: %d new, %d restored, %d retired, %d errors.\n",
			report.Sources, report.Inserted, report.Restored, report.Retired, report.Errors)
		return nil
	case *practiceMode:
		m, err := domain.ParseSessionMode(*mode)
		if err != nil {
			return err
		}
		return practiceInTerminal(ctx, db, cfg, m, *minutes, os.Stdin, os.Stdout)
	}
	return serve(ctx, db, cfg)
}

func serve(ctx context.Context, db *storage.DB, cfg config.Config) error {
	if cfg.Digest.Enabled {
		settings, err := db.Settings(ctx)
		if err != nil {
			return err
		}
		d, err := digest.New(db, settings)
		if err != nil {
			return err
		}
		d.Start(ctx)
		slog.Info("Daily digest scheduled", "next_run", d.NextRun())
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(db, practice.NewService(db), cfg.Sources.ReposDir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.HTTP.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
