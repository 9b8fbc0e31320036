package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "go.uber.org/automaxprocs"

	"github.com/MJE43/stake-wheel-go/internal/api"
	"github.com/MJE43/stake-wheel-go/internal/config"
	"github.com/MJE43/stake-wheel-go/internal/live"
	"github.com/MJE43/stake-wheel-go/internal/scan"
	"github.com/MJE43/stake-wheel-go/internal/session"
	"github.com/MJE43/stake-wheel-go/internal/store"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
	wzap "github.com/MJE43/stake-wheel-go/pkg/zap"
)

// go build -ldflags "-X github.com/MJE43/stake-wheel-go/internal/api.EngineVersion=x.y.z"
var flagconf string

func init() {
	flag.StringVar(&flagconf, "conf", "configs", "config path, eg: -conf configs/config.yaml")
}

func main() {
	flag.Parse()

	bc, err := config.Load(flagconf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := wzap.NewZapLogger(&wzap.Config{
		Mode:  wzap.ParseMode(bc.Log.Mode),
		Level: bc.Log.Level,
		App:   bc.Log.App,
		Dir:   bc.Log.Dir,
		File:  bc.Log.File,
	})
	defer func() { _ = logger.Sync() }()

	if err := run(bc, logger); err != nil {
		logger.Error("wheeld stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(bc *config.Bootstrap, logger *zap.Logger) error {
	logger.Info("starting wheeld",
		zap.String("version", api.EngineVersion),
		zap.String("commit", api.GitCommit),
		zap.String("addr", bc.Server.HTTP.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, bc.Data.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	scanner, err := scan.NewScanner(scan.Options{
		Workers:  bc.Scan.Workers,
		MaxRange: bc.Scan.MaxRange,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create scanner: %w", err)
	}
	defer scanner.Close()

	tier, err := wheel.ParseTier(bc.Wheel.DefaultTier)
	if err != nil {
		return err
	}
	hub := live.NewHub(logger)
	sessions := session.NewManager(session.ManagerOptions{
		TTL:          bc.Wheel.SessionTTL.Duration,
		MaxSessions:  bc.Wheel.MaxSessions,
		SegmentCount: bc.Wheel.DefaultSegments,
		Tier:         tier,
		MaxSegments:  bc.Wheel.MaxSegments,
		NewSpinner:   spinnerFactory(bc.Wheel),
		Sink:         hub,
		Logger:       logger,
	})
	defer sessions.Close()

	h := bc.Server.HTTP
	server := api.NewServer(api.Options{
		DB:                 db,
		Scanner:            scanner,
		Sessions:           sessions,
		Hub:                hub,
		Logger:             logger,
		MaxSegments:        bc.Wheel.MaxSegments,
		RequestTimeout:     h.RequestTimeout.Duration,
		CORSOrigins:        h.CORSOrigins,
		ScanDefaultLimit:   bc.Scan.DefaultLimit,
		ScanDefaultTimeout: bc.Scan.DefaultTimeout.Duration,
		ScanMaxTimeout:     bc.Scan.MaxTimeout.Duration,
	})

	srv := &http.Server{
		Addr:         h.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  h.ReadTimeout.Duration,
		WriteTimeout: h.WriteTimeout.Duration,
		IdleTimeout:  h.IdleTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Database) (*store.SQLiteDB, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	db, err := store.NewSQLiteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func spinnerFactory(cfg config.Wheel) func() session.Spinner {
	if cfg.Spinner == config.SpinnerManual {
		return func() session.Spinner { return session.ManualSpinner{} }
	}
	d := cfg.SpinDuration.Duration
	return func() session.Spinner { return session.NewTimerSpinner(d) }
}
