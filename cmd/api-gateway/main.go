package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	jwtauth "github.com/NordCoder/Taskboard/internal/auth"
	"github.com/NordCoder/Taskboard/internal/broker"
	config "github.com/NordCoder/Taskboard/internal/config/api-gateway"
	"github.com/NordCoder/Taskboard/internal/domain/kafka"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/NordCoder/Taskboard/internal/outbox"
	kafkax "github.com/NordCoder/Taskboard/internal/repository/kafka"
	apigateway "github.com/NordCoder/Taskboard/internal/services/api-gateway"
	notifsvc "github.com/NordCoder/Taskboard/internal/services/api-gateway/notification"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/profile"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/realtime"
	tasksvc "github.com/NordCoder/Taskboard/internal/services/api-gateway/task"
	"github.com/NordCoder/Taskboard/internal/services/scheduler"
	schedrepo "github.com/NordCoder/Taskboard/internal/services/scheduler/repo"
	"github.com/NordCoder/Taskboard/internal/trigger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type runner interface {
	Run(ctx context.Context) error
}

func main() {
	path := flag.String("config", envOr("API_GATEWAY_CONFIG", "config/api-gateway.yaml"), "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api-gateway",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("store", cfg.Store.Driver),
		zap.String("delivery", cfg.Notifications.Delivery),
	)

	otelShutdown := initOTel(rootCtx, cfg, logger)
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}
	defer st.close()

	var mirror kafka.NotificationEvents
	if cfg.Kafka.Enable {
		p := kafkax.BootstrapProducer(rootCtx, kafkax.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Async:        true,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		defer func() { _ = p.Close() }()
		mirror = kafkax.NewNotificationEventsKafka(p)
		logger.Info("kafka mirror enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	b := broker.New(logger)
	dispatcher := trigger.NewDispatcher(logger, st.notifs, b, mirror, trigger.NewBreaker(cfg.Breaker, logger))

	var runners []runner
	hooks := tasksvc.Hooks{AfterCommit: dispatcher}
	if cfg.Notifications.Delivery == config.DeliveryOutbox {
		hooks = tasksvc.Hooks{InTx: trigger.NewOutboxRecorder(st.outbox)}
		dispatch := outbox.MakeGlobalOutboxHandler(dispatcher, retry.DefaultOutboxPolicy(logger), logger)
		runners = append(runners, outbox.NewOutboxRunner(logger, st.outbox, dispatch, cfg.Outbox))
	}
	if cfg.Deadline.Enable {
		uc := scheduler.NewUC(schedrepo.TaskRepo{R: st.tasks}, schedrepo.Reminders{D: dispatcher})
		runners = append(runners, scheduler.New(logger, uc, scheduler.Config{
			Tick:       cfg.Deadline.Tick,
			Window:     cfg.Deadline.Window,
			BatchLimit: cfg.Deadline.Batch,
		}))
	}

	tokens := jwtauth.NewTokens(jwtauth.Config{
		Secret:    []byte(cfg.Auth.JWTSecret),
		Issuer:    cfg.Auth.Issuer,
		AccessTTL: cfg.Auth.AccessTTL,
	})
	channel := realtime.NewHandler(logger, b, tokens, realtime.Config{ChannelBuffer: cfg.Broker.ChannelBuffer})

	notifServer := notifsvc.NewServer(logger, notifsvc.NewUsecase(st.notifs, dispatcher)).
		WithProducers(cfg.Notifications.Producers...)
	router := apigateway.NewRouter(apigateway.Deps{
		Log:           logger,
		Verifier:      tokens,
		Notifications: notifServer,
		Tasks:         tasksvc.NewServer(logger, tasksvc.NewUsecase(logger, st.tasks, st.tx, hooks)),
		Profile:       profile.NewServer(logger, st.users),
		Channel:       channel,
		Health:        st.ping,
		CORSOrigins:   cfg.Server.CORSOrigins,
	})
	httpSrv := buildHTTPServer(cfg, router)
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.ping, logger)

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		if err := serveHTTP(httpSrv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, r := range runners {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		channel.CloseAll()
		_ = ms.Shutdown(shCtx)
		return httpSrv.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api-gateway stopped", zap.Error(err))
	}
	logger.Info("bye")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
