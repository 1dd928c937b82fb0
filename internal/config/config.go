package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type Config struct {
	LogLevel   string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string    `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string    `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	Storage    string    `yaml:"storage" env:"STORAGE" env-default:"memory"`
	Redis      Redis     `yaml:"redis"`
	Session    Session   `yaml:"session"`
	Game       Game      `yaml:"game"`
	Websocket  Websocket `yaml:"websocket"`
	Tracing    Tracing   `yaml:"tracing"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Session - a session untouched for IdleTimeout is evicted; a negative timeout keeps sessions forever.
type Session struct {
	IdleTimeout  time.Duration `yaml:"idle-timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"1h"`
	ReapInterval time.Duration `yaml:"reap-interval" env:"SESSION_REAP_INTERVAL" env-default:"5m"`
}

type Game struct {
	// TrustClientMarker accepts any marker on a move instead of checking whose turn it is.
	TrustClientMarker bool `yaml:"trust-client-marker" env:"GAME_TRUST_CLIENT_MARKER"`
}

type Websocket struct {
	// AllowedOrigins empty means same-origin requests only.
	AllowedOrigins  []string `yaml:"allowed-origins" env:"WS_ALLOWED_ORIGINS" env-separator:","`
	ReadLimit       int64    `yaml:"read-limit" env:"WS_READ_LIMIT" env-default:"4096"`
	SendBuffer      int      `yaml:"send-buffer" env:"WS_SEND_BUFFER" env-default:"64"`
	MaxDecodeErrors int      `yaml:"max-decode-errors" env:"WS_MAX_DECODE_ERRORS" env-default:"10"`
}

type Tracing struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
	ServiceName string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tictactoe-rooms"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if config.Storage != StorageMemory && config.Storage != StorageRedis {
		return nil, fmt.Errorf("unknown storage %q, expected %s or %s", config.Storage, StorageMemory, StorageRedis)
	}

	return config, nil
}
