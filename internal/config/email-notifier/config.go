package email_notifier_config

import (
	"time"

	"github.com/NordCoder/Taskboard/internal/obs"
	kafkax "github.com/NordCoder/Taskboard/internal/repository/kafka"
	pginfra "github.com/NordCoder/Taskboard/internal/repository/postgres"
)

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

type Config struct {
	DB     pginfra.Config        `mapstructure:"db"`
	In     kafkax.ConsumerConfig `mapstructure:"kafka_in"`
	SMTP   SMTP                  `mapstructure:"smtp"`
	Server Server                `mapstructure:"server"`
	Log    Log                   `mapstructure:"log"`
	OTEL   obs.OTELConfig        `mapstructure:"otel"`
}

func (c *Config) LoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "taskboard/email-notifier",
		File:   c.Log.File,
	}
}
