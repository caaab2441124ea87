package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/wikitab/wikitab/internal/config"
	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/logging"
	"github.com/wikitab/wikitab/internal/session"
	"github.com/wikitab/wikitab/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"pages_dir", cfg.Pages.Dir,
	)

	dialect, err := engine.DialectFor(cfg.Database.Driver)
	if err != nil {
		slog.Error("unsupported database driver", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}

	driverName := "sqlite"
	if dialect.Name() == "postgres" {
		driverName = "pgx"
	}

	db, err := sql.Open(driverName, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetConnMaxLifetime(cfg.Database.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.Database.MaxConnIdleTime)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "driver", dialect.Name())

	eng := engine.New(db, dialect, session.NewMemoryStore(), engine.Config{
		LockStaleness:    cfg.Engine.LockStaleness,
		LogRetention:     cfg.Engine.LogRetention,
		YearPivot:        cfg.Engine.YearPivot,
		PagerRadius:      cfg.Engine.PagerRadius,
		PageSizes:        cfg.Engine.PageSizes,
		MaxUploadSize:    cfg.Engine.MaxUploadSize,
		CustomViews:      cfg.Engine.CustomViews,
		Aliasing:         cfg.Engine.Aliasing,
		CheckMailDomains: cfg.Engine.CheckMailDomains,
	})

	if err := eng.Migrate(ctx); err != nil {
		slog.Error("failed to migrate engine tables", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(eng, cfg)

	// Serve until interrupted, then drain connections
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Server.Addr())
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
