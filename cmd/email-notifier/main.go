package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Taskboard/internal/config/email-notifier"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/NordCoder/Taskboard/internal/repository/kafka"
	pg "github.com/NordCoder/Taskboard/internal/repository/postgres"
	notifier "github.com/NordCoder/Taskboard/internal/services/email-notifier"
	"github.com/NordCoder/Taskboard/internal/services/email-notifier/repo"

	"go.uber.org/zap"
)

func wiring(db *pg.DB, cfg *config.Config, cons *kafka.Consumer, l *zap.Logger) *notifier.Controller {
	uc := &notifier.Handler{
		Users: repo.UserReader{R: pg.NewUserRepo(db)},
		Out:   notifier.New(cfg.SMTP).WithLogger(l),
		Retry: retry.Policy{
			Name:     "smtp_send",
			Attempts: 3,
			Backoff:  retry.ExpoJitter{Base: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
			OnAttempt: func(i int, err error) {
				l.Warn("smtp retry", zap.Int("attempt", i+1), zap.Error(err))
			},
		},
		Log: l,
	}
	return &notifier.Controller{Log: l, Sub: cons, UC: uc}
}

func main() {
	path := flag.String("config", envOr("EMAIL_NOTIFIER_CONFIG", "config/email-notifier.yaml"), "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting email-notifier",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("topic", cfg.In.Topic),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	ot, err := obs.SetupOTel(rootCtx, &cfg.OTEL)
	if err != nil {
		l.Warn("otel init", zap.Error(err))
		ot = &obs.OTel{}
	}
	defer func() { _ = ot.Shutdown(context.Background()) }()

	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	cons := kafka.BootstrapConsumer(rootCtx, &cfg.In, l)
	defer func() { _ = cons.Close() }()

	ctrl := wiring(db, cfg, cons, l)
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(rootCtx) }()

	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("controller error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
