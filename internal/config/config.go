package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultJWTSecret        = "dev-secret-change-me"
	defaultJWTRefreshSecret = "dev-refresh-secret-change-me"
)

type Config struct {
	Port             string        `env:"APP_PORT" envDefault:"8080"`
	DatabaseDSN      string        `env:"DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=arcade port=5432 sslmode=disable TimeZone=UTC"`
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"dev-refresh-secret-change-me"`
	Env              string        `env:"APP_ENV" envDefault:"dev"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`
	ScoreRateLimit   int           `env:"SCORE_RATE_LIMIT" envDefault:"10"`
	ScoreRateWindow  time.Duration `env:"SCORE_RATE_WINDOW" envDefault:"60s"`
	RedisURL         string        `env:"REDIS_URL"`
	RulesFile        string        `env:"SCORE_RULES_FILE"`
	FrontendURL      string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	EdgeRatePerSec   float64       `env:"EDGE_RATE_PER_SEC" envDefault:"20"`
	EdgeBurst        int           `env:"EDGE_BURST" envDefault:"40"`
}

// Error is returned for configuration that cannot start the service. The
// caller decides whether to abort.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// IsProduction reports whether cookies and secrets get production treatment.
func (c Config) IsProduction() bool { return c.Env == "prod" || c.Env == "production" }

// Load reads the environment, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &Error{Key: "env", Reason: err.Error()}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch {
	case cfg.Port == "":
		return &Error{Key: "APP_PORT", Reason: "must not be empty"}
	case cfg.DatabaseDSN == "":
		return &Error{Key: "DATABASE_DSN", Reason: "must not be empty"}
	case cfg.JWTSecret == "":
		return &Error{Key: "JWT_SECRET", Reason: "must not be empty"}
	case cfg.JWTRefreshSecret == "":
		return &Error{Key: "JWT_REFRESH_SECRET", Reason: "must not be empty"}
	case cfg.JWTSecret == cfg.JWTRefreshSecret:
		return &Error{Key: "JWT_REFRESH_SECRET", Reason: "must differ from JWT_SECRET"}
	case cfg.Env != "dev" && (cfg.JWTSecret == defaultJWTSecret || cfg.JWTRefreshSecret == defaultJWTRefreshSecret):
		return &Error{Key: "JWT_SECRET", Reason: "default secret outside dev"}
	case cfg.AccessTokenTTL <= 0:
		return &Error{Key: "ACCESS_TOKEN_TTL", Reason: "must be positive"}
	case cfg.RefreshTokenTTL <= cfg.AccessTokenTTL:
		return &Error{Key: "REFRESH_TOKEN_TTL", Reason: "must exceed ACCESS_TOKEN_TTL"}
	case cfg.BcryptCost < 4 || cfg.BcryptCost > 31:
		return &Error{Key: "BCRYPT_COST", Reason: "must be between 4 and 31"}
	case cfg.ScoreRateLimit <= 0:
		return &Error{Key: "SCORE_RATE_LIMIT", Reason: "must be positive"}
	case cfg.ScoreRateWindow <= 0:
		return &Error{Key: "SCORE_RATE_WINDOW", Reason: "must be positive"}
	}
	return nil
}
