// Command scraper is the long-lived worker described in spec.md: it
// maintains the remote WebForms session's tokens, drives the
// date-selection -> entry-enumeration -> per-entry-detail protocol, and
// streams normalized entries to the configured sink, all over a single
// in-process fan-out bus.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/config"
	"github.com/pjatk21/sigma-api/internal/connector"
	"github.com/pjatk21/sigma-api/internal/control"
	"github.com/pjatk21/sigma-api/internal/emitter"
	"github.com/pjatk21/sigma-api/internal/engine"
	"github.com/pjatk21/sigma-api/internal/formbuilder"
	"github.com/pjatk21/sigma-api/internal/httpkit"
	"github.com/pjatk21/sigma-api/internal/supervisor"
)

func main() {
	os.Exit(int(run()))
}

func run() supervisor.ExitCode {
	cfg, err := config.Load()
	if err != nil {
		// Configuration failures happen before logging is even set up;
		// stderr is the only reasonable sink.
		println("scraper: " + err.Error())
		return supervisor.ExitFatal
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	b := bus.New(bus.DefaultCapacity, logger)

	conn := connector.Dial(cfg.ManagerURL, logger)
	defer conn.Close()

	client := httpkit.New(formbuilder.HeaderUserAgent, logger)
	interDaySleep := time.Duration(cfg.ScrapeInterDaySleepMs) * time.Millisecond
	eng := engine.New(client, b, logger, cfg.ScrapeConcurrency, interDaySleep)
	if err := eng.Bootstrap(context.Background()); err != nil {
		logger.Error("initial token bootstrap failed", zap.Error(err))
		return supervisor.ExitFatal
	}

	recv := control.New(conn, b, logger)

	sink := buildSink(cfg, conn, logger)
	emit := emitter.New(b, sink, logger)

	sup := supervisor.New(b, logger)
	return sup.Run(context.Background(), []supervisor.Task{
		{Name: "receiver", Run: func(ctx context.Context) error {
			recv.Run(ctx)
			return nil
		}},
		{Name: "engine", Run: eng.RunLoop},
		{Name: "emitter", Run: func(ctx context.Context) error {
			emit.Run(ctx)
			return nil
		}},
	})
}

func buildSink(cfg *config.Config, conn *websocket.Conn, logger *zap.Logger) emitter.Sink {
	if cfg.UploadURL != "" {
		return &emitter.HTTPSink{
			Client:    emitter.NewHTTPClient(),
			UploadURL: cfg.UploadURL,
			UploadKey: cfg.UploadKey,
			Mode:      cfg.UploadMode,
			Logger:    logger,
		}
	}
	return &emitter.SocketSink{Conn: conn}
}

func newLogger(level zapcore.Level) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		// zap's production config is never expected to fail to build;
		// fall back to a no-op logger rather than crash before we can log.
		return zap.NewNop()
	}
	return logger
}
