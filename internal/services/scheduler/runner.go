package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Config struct {
	Tick       time.Duration
	Window     time.Duration
	BatchLimit int
}

var (
	mFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tasks_due_total", Help: "Tasks claimed for a deadline reminder.",
	})
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_reminders_sent_total", Help: "Deadline reminders delivered.",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_errors_total", Help: "Errors in scheduler loop.",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_loop_duration_seconds", Help: "Scheduler tick duration.",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg Config
}

func New(log *zap.Logger, uc *Usecase, cfg Config) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Runner{Log: log.With(zap.String("component", "scheduler")), UC: uc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	fetched, sent, errs, err := r.UC.Tick(ctx, r.Cfg.Window, r.Cfg.BatchLimit)
	if err != nil {
		mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if fetched > 0 {
		mFetched.Add(float64(fetched))
		mSent.Add(float64(sent))
		if errs > 0 {
			mErr.Add(float64(errs))
			r.Log.Warn("deadline reminders lost", zap.Int("errors", errs))
		}
		r.Log.Debug("reminder batch", zap.Int("fetched", fetched), zap.Int("sent", sent), zap.Int("errors", errs))
	}
	mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
