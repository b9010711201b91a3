package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/geooracle/internal/attest"
	"github.com/playperu/geooracle/internal/config"
	"github.com/playperu/geooracle/internal/database"
	"github.com/playperu/geooracle/internal/evidence"
	"github.com/playperu/geooracle/internal/handler/health"
	"github.com/playperu/geooracle/internal/migrations"
	"github.com/playperu/geooracle/internal/problembank"
	"github.com/playperu/geooracle/internal/rooms"
	"github.com/playperu/geooracle/internal/server"
	"github.com/playperu/geooracle/internal/walrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// --- Oracle key ---
	signer, err := attest.LoadOrCreate(logger, cfg.KeyPath(), cfg.PubKeyPath())
	if err != nil {
		return fmt.Errorf("loading oracle key: %w", err)
	}

	// --- Evidence store ---
	store, closeStore, err := openEvidence(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Settlement ---
	bank := problembank.Load(logger, cfg.ProblemBankDir)
	uploader := walrus.NewUploader(logger, walrus.Config{
		PublisherURL:   cfg.WalrusPublisherURL,
		Epochs:         cfg.WalrusEpochs,
		Timeout:        cfg.WalrusUploadTimeout,
		RequireSuccess: cfg.WalrusRequireSuccess,
	})
	engine := rooms.NewEngine(logger, uploader, signer)
	registry := rooms.NewRegistry(logger, cfg.PackageID, bank, engine, store)

	logger.Info("oracle ready",
		"address", signer.Address(),
		"package_id", cfg.PackageID,
		"evidence_backend", cfg.EvidenceBackend,
		"walrus_publisher", uploader.Config().PublisherURL,
		"problems", bank.Len(),
	)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Rooms:          registry,
		Evidence:       store,
		Signer:         signer,
		Walrus:         uploader.Config(),
		GameConfigID:   cfg.GameConfigID,
		ProblemBankDir: cfg.ProblemBankDir,
		AdminTokenHash: cfg.AdminTokenHash,
		CORSOrigins:    cfg.CORSOrigins,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
			"evidence": store,
			"signer":   signerChecker{signer},
		}).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// checkedStore is an evidence store that can also report its health.
type checkedStore interface {
	evidence.Store
	health.Checker
}

func openEvidence(ctx context.Context, logger *slog.Logger, cfg *config.Config) (checkedStore, func(), error) {
	if cfg.EvidenceBackend == config.BackendFile {
		fs, err := evidence.OpenFileStore(logger, cfg.HistoryPath())
		if err != nil {
			return nil, nil, fmt.Errorf("opening history file: %w", err)
		}
		return fs, func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	if err := migrations.Run(ctx, logger, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath())
	return evidence.NewSQLStore(db), closer(logger, db), nil
}

func closer(logger *slog.Logger, db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Error("closing sqlite", "error", err)
		}
	}
}

// signerChecker proves the oracle key can still produce verifiable signatures.
type signerChecker struct{ s *attest.Signer }

func (c signerChecker) Check(_ context.Context) error {
	probe := []byte("healthz")
	sig, err := c.s.Sign(probe)
	if err != nil {
		return err
	}
	if !c.s.Verify(probe, sig) {
		return errors.New("signature did not verify")
	}
	return nil
}
