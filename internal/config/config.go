package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Signing  SigningConfig  `json:"signing"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	// VerifyRatePerMinute bounds unauthenticated verification calls per IP.
	VerifyRatePerMinute int `json:"verify_rate_per_minute"`
}

type DatabaseConfig struct {
	// Driver selects "postgres" or "memory" (development/tests).
	Driver          string `json:"driver"`
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens minted by the portal's identity
	// service. This service never issues tokens of its own.
	JWTSecret string `json:"jwt_secret"`
}

type SigningKeyConfig struct {
	ID        string    `json:"id"`
	Secret    string    `json:"secret"`
	RetiredAt time.Time `json:"retired_at"`
}

type SigningConfig struct {
	ActiveKeyID  string             `json:"active_key_id"`
	ActiveSecret string             `json:"active_secret"`
	RetiredKeys  []SigningKeyConfig `json:"retired_keys"`
	// GracePeriod keeps retired generations verify-only after rotation so
	// letters signed before the rotation stay checkable.
	GracePeriod time.Duration `json:"grace_period"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load reads a JSON config file, fills defaults, and applies environment
// overrides for the secrets that should not live on disk.
func Load(path string) (*Configuration, error) {
	cfg := Defaults()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SIGNING_SECRET"); v != "" {
		cfg.Signing.ActiveSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Defaults returns the development configuration.
func Defaults() *Configuration {
	cfg := &Configuration{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            "5432",
			Username:        "postgres",
			Password:        "postgres",
			Name:            "sakti_surat",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 300,
		},
		Auth: AuthConfig{
			JWTSecret: "dev-only-jwt-secret",
		},
		Signing: SigningConfig{
			ActiveKeyID:  "k1",
			ActiveSecret: "dev-only-signing-secret",
			GracePeriod:  30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Configuration) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.VerifyRatePerMinute == 0 {
		c.Server.VerifyRatePerMinute = 30
	}
	if c.Signing.GracePeriod == 0 {
		c.Signing.GracePeriod = 30 * 24 * time.Hour
	}
}

// LogConfig writes the effective configuration with secrets redacted.
func (c *Configuration) LogConfig(logger *zap.Logger) {
	logger.Info("application configuration",
		zap.String("port", c.Server.Port),
		zap.Duration("read_timeout", c.Server.ReadTimeout),
		zap.Duration("write_timeout", c.Server.WriteTimeout),
		zap.Int("verify_rate_per_minute", c.Server.VerifyRatePerMinute),
		zap.String("database_driver", c.Database.Driver),
		zap.String("database_host", c.Database.Host),
		zap.String("database_name", c.Database.Name),
		zap.String("signing_key_id", c.Signing.ActiveKeyID),
		zap.Int("retired_keys", len(c.Signing.RetiredKeys)),
		zap.Duration("signing_grace", c.Signing.GracePeriod),
		zap.String("log_level", c.Logging.Level),
	)
}
