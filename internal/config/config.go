// Package config loads process configuration: defaults, then an optional
// YAML file, then RDSGRAPH_* environment variables. Command-line flags are
// applied by the caller before Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	NATS      NATSConfig      `yaml:"nats"`
	HTTP      HTTPConfig      `yaml:"http"`
	Traversal TraversalConfig `yaml:"traversal"`
	LevelRule string          `yaml:"level_rule" validate:"oneof=flat entity-container"`
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// StoreConfig selects the relational backend.
type StoreConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory postgres"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	MaxConns    int32  `yaml:"max_conns" validate:"gte=0"`
}

// Neo4jConfig enables the power-graph projection when URL is set.
type Neo4jConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// NATSConfig enables import events when URL is set.
type NATSConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// HTTPConfig configures the API and metrics listeners.
type HTTPConfig struct {
	Port        int     `yaml:"port" validate:"min=1,max=65535"`
	MetricsPort int     `yaml:"metrics_port" validate:"min=0,max=65535,nefield=Port"`
	CORSOrigin  string  `yaml:"cors_origin"`
	RateLimit   float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst   int     `yaml:"rate_burst" validate:"gte=0"`
	MaxBodyMB   int     `yaml:"max_body_mb" validate:"min=1,max=1024"`
}

// TraversalConfig bounds topology queries.
type TraversalConfig struct {
	MaxDepth int `yaml:"max_depth" validate:"min=1,max=1000"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store:     StoreConfig{Backend: BackendMemory},
		Neo4j:     Neo4jConfig{User: "neo4j"},
		HTTP:      HTTPConfig{Port: 8080, MetricsPort: 9090, CORSOrigin: "*", RateLimit: 20, RateBurst: 40, MaxBodyMB: 32},
		Traversal: TraversalConfig{MaxDepth: 20},
		LevelRule: "flat",
		LogLevel:  "info",
	}
}

// Load reads defaults, then path if non-empty, then the environment. The
// result is not validated; call Validate after applying flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos do not pass silently.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays RDSGRAPH_* variables. Empty values are ignored.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	env := func(key string) (string, bool) {
		v, ok := lookup("RDSGRAPH_" + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := env(key); ok {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("RDSGRAPH_%s: %w", key, err))
			}
		}
	}
	setInt := func(dst *int) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.Atoi(v); return }
	}

	str("STORE", &cfg.Store.Backend)
	str("POSTGRES_URL", &cfg.Store.PostgresURL)
	num("PG_MAX_CONNS", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		cfg.Store.MaxConns = int32(n)
		return err
	})
	str("NEO4J_URL", &cfg.Neo4j.URL)
	str("NEO4J_USER", &cfg.Neo4j.User)
	str("NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("NEO4J_DATABASE", &cfg.Neo4j.Database)
	str("NATS_URL", &cfg.NATS.URL)
	num("PORT", setInt(&cfg.HTTP.Port))
	num("METRICS_PORT", setInt(&cfg.HTTP.MetricsPort))
	str("CORS_ORIGIN", &cfg.HTTP.CORSOrigin)
	num("RATE_LIMIT", func(v string) (err error) { cfg.HTTP.RateLimit, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", setInt(&cfg.HTTP.RateBurst))
	num("MAX_BODY_MB", setInt(&cfg.HTTP.MaxBodyMB))
	num("MAX_DEPTH", setInt(&cfg.Traversal.MaxDepth))
	str("LEVEL_RULE", &cfg.LevelRule)
	str("LOG_LEVEL", &cfg.LogLevel)
	return errors.Join(errs...)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value=%v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps LogLevel onto a slog level.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
