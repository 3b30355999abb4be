package api_gateway_config

import (
	"time"

	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/outbox"
	pg "github.com/NordCoder/Taskboard/internal/repository/postgres"
	"github.com/NordCoder/Taskboard/internal/trigger"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DeliveryDirect = "direct"
	DeliveryOutbox = "outbox"
)

type Store struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:      lc.Level,
		Pretty:     lc.Pretty,
		App:        "taskboard/" + app.Name,
		Env:        app.Env,
		Ver:        app.Version,
		File:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
	}
}

type Auth struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

type Notifications struct {
	Delivery string `mapstructure:"delivery"`
	// Producers are the token subjects allowed to POST general and mention
	// notifications.
	Producers []string `mapstructure:"producers"`
}

type Broker struct {
	ChannelBuffer int `mapstructure:"channel_buffer"`
}

type Kafka struct {
	Enable       bool          `mapstructure:"enable"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type Deadline struct {
	Enable bool          `mapstructure:"enable"`
	Tick   time.Duration `mapstructure:"tick"`
	Window time.Duration `mapstructure:"window"`
	Batch  int           `mapstructure:"batch"`
}

type Config struct {
	App           App                   `mapstructure:"app"`
	Server        Server                `mapstructure:"server"`
	Store         Store                 `mapstructure:"store"`
	DB            pg.Config             `mapstructure:"db"`
	OTEL          obs.OTELConfig        `mapstructure:"otel"`
	Log           Log                   `mapstructure:"log"`
	Auth          Auth                  `mapstructure:"auth"`
	Notifications Notifications         `mapstructure:"notifications"`
	Broker        Broker                `mapstructure:"broker"`
	Breaker       trigger.BreakerConfig `mapstructure:"breaker"`
	Outbox        outbox.RunnerConfig   `mapstructure:"outbox"`
	Kafka         Kafka                 `mapstructure:"kafka"`
	Deadline      Deadline              `mapstructure:"deadline"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
