package main

import (
	"context"
	"time"

	config "github.com/NordCoder/Taskboard/internal/config/api-gateway"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/domain/user"
	pg "github.com/NordCoder/Taskboard/internal/repository/postgres"
	"github.com/NordCoder/Taskboard/internal/repository/sqlite"
	tasksvc "github.com/NordCoder/Taskboard/internal/services/api-gateway/task"
	"go.uber.org/zap"
)

// stores is everything the gateway needs from the selected backend. outbox
// is nil for sqlite.
type stores struct {
	notifs notification.Repo
	tasks  task.Repo
	users  user.Repo
	outbox outbox.Repository
	tx     tasksvc.Transactor
	ping   func(context.Context) error
	close  func()
}

func initStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	clock := notification.NewMonotonicClock(nil)

	if cfg.Store.Driver == config.DriverSQLite {
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Store.SQLitePath))
		return &stores{
			notifs: sqlite.NewNotificationRepo(s, clock),
			tasks:  sqlite.NewTaskRepo(s),
			users:  sqlite.NewUserRepo(s),
			tx:     tasksvc.NoTx{},
			ping:   s.Ping,
			close:  func() { _ = s.Close() },
		}, nil
	}

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("postgres connected")
	return &stores{
		notifs: pg.NewNotificationRepo(db, clock),
		tasks:  pg.NewTaskRepo(db),
		users:  pg.NewUserRepo(db),
		outbox: pg.NewOutboxRepo(db),
		tx:     pg.NewTransactor(db, logger),
		ping:   db.Ping,
		close:  db.Close,
	}, nil
}
