// Package config reads process configuration from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/audit"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DBDriver string
	DBDSN    string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	LockWait      time.Duration

	RabbitMQURL string
	AuditQueue  string

	AccessFailOpen bool
	TrustProxy     bool
	WSOrigins      []string

	AdminUsername string
	AdminPassword string
}

// Load reads .env (when present) and the environment. Variables already set
// in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		Port:      envStr("INTAKE_PORT", "8080"),
		LogLevel:  envStr("INTAKE_LOG_LEVEL", "info"),
		LogFormat: envStr("INTAKE_LOG_FORMAT", "text"),

		DBDriver: envStr("INTAKE_DB_DRIVER", "sqlite"),
		DBDSN:    envStr("INTAKE_DB_DSN", "intake.db"),

		JWTSecret: os.Getenv("INTAKE_JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		AuditQueue:  envStr("INTAKE_AUDIT_QUEUE", audit.DefaultQueue),

		WSOrigins: envList("INTAKE_WS_ORIGINS"),

		AdminUsername: os.Getenv("INTAKE_ADMIN_USERNAME"),
		AdminPassword: os.Getenv("INTAKE_ADMIN_PASSWORD"),
	}

	var err error
	if cfg.TokenTTL, err = envDur("INTAKE_TOKEN_TTL", 8*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("INTAKE_BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = envDur("INTAKE_LOCK_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockWait, err = envDur("INTAKE_LOCK_WAIT", 5*time.Second); err != nil {
		return Config{}, err
	}
	// Redis lock keys are never extended, so a holder must be able to wait
	// out a contended lock and still finish before its own key expires.
	if cfg.LockTTL <= cfg.LockWait {
		return Config{}, errors.New("INTAKE_LOCK_TTL must be longer than INTAKE_LOCK_WAIT")
	}
	if cfg.AccessFailOpen, err = envBool("ACCESS_FAIL_OPEN", true); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxy, err = envBool("INTAKE_TRUST_PROXY", false); err != nil {
		return Config{}, err
	}

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("INTAKE_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("INTAKE_JWT_SECRET is required")
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
