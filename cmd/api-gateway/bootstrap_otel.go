package main

import (
	"context"

	config "github.com/NordCoder/Taskboard/internal/config/api-gateway"
	"github.com/NordCoder/Taskboard/internal/obs"
	"go.uber.org/zap"
)

func initOTel(ctx context.Context, cfg *config.Config, logger *zap.Logger) func(context.Context) error {
	ot, err := obs.SetupOTel(ctx, &cfg.OTEL)
	if err != nil {
		logger.Warn("otel init failed, tracing disabled", zap.Error(err))
		return func(context.Context) error { return nil }
	}
	return ot.Shutdown
}
