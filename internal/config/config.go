package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port         string
	DatabaseURI  string
	StoreBackend string
	JWTSecret    string
	JWTIssuer    string
	JWTTTL       time.Duration
	CORSOrigins  []string
	BcryptCost   int
	LogLevel     string
	LogFormat    string
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv and performs minimal validation.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         fallback(getenv("PORT"), "9900"),
		DatabaseURI:  fallback(getenv("DB_URI"), "mongodb://localhost:27017/contacts"),
		StoreBackend: strings.ToLower(fallback(getenv("STORE_BACKEND"), StoreMongo)),
		JWTSecret:    strings.TrimSpace(getenv("JWT_SECRET")),
		JWTIssuer:    fallback(getenv("JWT_ISSUER"), "contacts-be"),
		CORSOrigins:  parseCSV(fallback(getenv("CORS_ALLOWED_ORIGINS"), "*")),
		LogLevel:     fallback(getenv("LOG_LEVEL"), "info"),
		LogFormat:    strings.ToLower(fallback(getenv("LOG_FORMAT"), "json")),
	}

	minutes := fallback(getenv("JWT_TTL_MINUTES"), "60")
	if ttlMinutes, err := strconv.Atoi(minutes); err == nil && ttlMinutes > 0 {
		cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute
	} else {
		cfg.JWTTTL = 60 * time.Minute
	}

	cost := fallback(getenv("BCRYPT_COST"), strconv.Itoa(bcrypt.DefaultCost))
	n, err := strconv.Atoi(cost)
	if err != nil || n < bcrypt.MinCost || n > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	cfg.BcryptCost = n

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that may also be set from command-line flags.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	switch c.StoreBackend {
	case StoreMongo:
		if c.DatabaseURI == "" {
			return fmt.Errorf("DB_URI is required for the %s store", StoreMongo)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMongo, StoreMemory, c.StoreBackend)
	}
	return nil
}

// TokensEnabled reports whether /login and Bearer authentication are on.
func (c Config) TokensEnabled() bool {
	return c.JWTSecret != ""
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
