package main

import (
	config "github.com/NordCoder/Taskboard/internal/config/api-gateway"
	"github.com/NordCoder/Taskboard/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
}
