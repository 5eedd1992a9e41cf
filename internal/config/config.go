package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Relay  RelayConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// RelayConfig tunes the per-connection transport.
type RelayConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	// EmitRateLimit is the number of /emit-notification calls allowed per
	// minute per caller. Zero disables limiting.
	EmitRateLimit int
}

type RedisConfig struct {
	URI          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return r.URI != ""
}

type JWTConfig struct {
	Secret string
}

// Enabled reports whether identity tokens are checked.
func (j JWTConfig) Enabled() bool {
	return j.Secret != ""
}

type LogConfig struct {
	Level  string
	Format string
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// LoadConfig reads configuration from the environment, after loading an
// optional .env file from the working directory.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("RELAY_HOST", "")
	v.SetDefault("RELAY_PORT", "8080")
	v.SetDefault("RELAY_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("RELAY_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_ALLOWED_ORIGINS", "*")
	v.SetDefault("RELAY_SEND_BUFFER", 256)
	v.SetDefault("RELAY_MAX_MESSAGE_SIZE", 64*1024)
	v.SetDefault("RELAY_EMIT_RATE_LIMIT", 0)
	v.SetDefault("RELAY_JWT_SECRET", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("RELAY_HOST"),
			Port:            v.GetString("RELAY_PORT"),
			ReadTimeout:     v.GetDuration("RELAY_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("RELAY_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("RELAY_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("RELAY_SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("RELAY_ALLOWED_ORIGINS")),
		},
		Relay: RelayConfig{
			SendBuffer:     v.GetInt("RELAY_SEND_BUFFER"),
			MaxMessageSize: v.GetInt64("RELAY_MAX_MESSAGE_SIZE"),
			EmitRateLimit:  v.GetInt("RELAY_EMIT_RATE_LIMIT"),
		},
		Redis: RedisConfig{
			URI:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("RELAY_JWT_SECRET"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("RELAY_PORT must not be empty")
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be positive, got %d", c.Relay.SendBuffer)
	}
	if c.Relay.MaxMessageSize < 512 {
		return fmt.Errorf("RELAY_MAX_MESSAGE_SIZE must be at least 512, got %d", c.Relay.MaxMessageSize)
	}
	if c.Relay.EmitRateLimit < 0 {
		return fmt.Errorf("RELAY_EMIT_RATE_LIMIT must not be negative")
	}
	if c.Relay.EmitRateLimit > 0 && !c.Redis.Enabled() {
		return fmt.Errorf("RELAY_EMIT_RATE_LIMIT requires REDIS_URL")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
