package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Liveness LivenessConfig `yaml:"liveness"`
	Cadence  CadenceConfig  `yaml:"cadence"`
	Detector DetectorConfig `yaml:"detector"`
	Database DatabaseConfig `yaml:"database"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig holds the embedding dimension and the three matching thresholds.
// Thresholds are maximum Euclidean distances; lower is stricter.
type EngineConfig struct {
	EmbeddingDim       int     `yaml:"embedding_dim"`
	LoginThreshold     float64 `yaml:"login_threshold"`
	LivenessThreshold  float64 `yaml:"liveness_threshold"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
}

type LivenessConfig struct {
	Expression          string  `yaml:"expression"`
	ExpressionThreshold float64 `yaml:"expression_threshold"`
	MouthOpenThreshold  float64 `yaml:"mouth_open_threshold"`
}

type CadenceConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

// DetectorConfig is handed to face-observation clients as is; the engine never reads it.
type DetectorConfig struct {
	InputSize      int     `yaml:"input_size" json:"input_size"`
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`         // file, postgres or mariadb
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MariaDBDSN   string `yaml:"mariadb_dsn"`    // MariaDB DSN (e.g., facegate:secret@tcp(mariadb:3306)/facegate)
	SnapshotPath string `yaml:"snapshot_path"`  // JSON snapshot for the file driver
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections
}

type WebConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"` // sessions idle longer are cancelled
	MaxSessions        int           `yaml:"max_sessions"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	NoColors bool   `yaml:"no_colors"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("150ms", "1m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration embedded in the binary, without env overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	d := Defaults()

	driver := envString("DATABASE_DRIVER", "")
	if driver == "" {
		switch {
		case os.Getenv("DATABASE_URL") != "":
			driver = "postgres"
		case os.Getenv("MARIADB_DSN") != "":
			driver = "mariadb"
		default:
			driver = d.Database.Driver
		}
	}

	return &Config{
		Engine: EngineConfig{
			EmbeddingDim:       envInt("FACEGATE_EMBEDDING_DIM", d.Engine.EmbeddingDim),
			LoginThreshold:     envFloat("FACEGATE_LOGIN_THRESHOLD", d.Engine.LoginThreshold),
			LivenessThreshold:  envFloat("FACEGATE_LIVENESS_THRESHOLD", d.Engine.LivenessThreshold),
			DuplicateThreshold: envFloat("FACEGATE_DUPLICATE_THRESHOLD", d.Engine.DuplicateThreshold),
		},
		Liveness: LivenessConfig{
			Expression:          envString("FACEGATE_LIVENESS_EXPRESSION", d.Liveness.Expression),
			ExpressionThreshold: envFloat("FACEGATE_EXPRESSION_THRESHOLD", d.Liveness.ExpressionThreshold),
			MouthOpenThreshold:  envFloat("FACEGATE_MOUTH_OPEN_THRESHOLD", d.Liveness.MouthOpenThreshold),
		},
		Cadence: CadenceConfig{
			MinInterval: envDuration("FACEGATE_MIN_FRAME_INTERVAL", d.Cadence.MinInterval),
		},
		Detector: DetectorConfig{
			InputSize:      envInt("FACEGATE_DETECTOR_INPUT_SIZE", d.Detector.InputSize),
			ScoreThreshold: envFloat("FACEGATE_DETECTOR_SCORE_THRESHOLD", d.Detector.ScoreThreshold),
		},
		Database: DatabaseConfig{
			Driver:       driver,
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			SnapshotPath: envString("SNAPSHOT_PATH", d.Database.SnapshotPath),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Web: WebConfig{
			Host:               envString("WEB_HOST", d.Web.Host),
			Port:               envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins:     envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
			SessionIdleTimeout: envDuration("WEB_SESSION_IDLE_TIMEOUT", d.Web.SessionIdleTimeout),
			MaxSessions:        envInt("WEB_MAX_SESSIONS", d.Web.MaxSessions),
		},
		Log: LogConfig{
			Level:    envString("LOG_LEVEL", d.Log.Level),
			File:     envString("LOG_FILE", d.Log.File),
			NoColors: os.Getenv("LOG_NO_COLORS") != "",
		},
	}
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.Engine.EmbeddingDim))
	}
	thresholds := []struct {
		name  string
		value float64
	}{
		{"login threshold", c.Engine.LoginThreshold},
		{"liveness threshold", c.Engine.LivenessThreshold},
		{"duplicate threshold", c.Engine.DuplicateThreshold},
	}
	for _, th := range thresholds {
		if th.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", th.name, th.value))
		}
	}
	if c.Liveness.Expression == "" {
		errs = append(errs, errors.New("liveness expression must not be empty"))
	}
	if c.Liveness.ExpressionThreshold <= 0 || c.Liveness.ExpressionThreshold >= 1 {
		errs = append(errs, fmt.Errorf("expression threshold must be in (0, 1), got %v", c.Liveness.ExpressionThreshold))
	}
	if c.Liveness.MouthOpenThreshold <= 0 {
		errs = append(errs, fmt.Errorf("mouth open threshold must be positive, got %v", c.Liveness.MouthOpenThreshold))
	}
	switch c.Database.Driver {
	case "file":
		if c.Database.SnapshotPath == "" {
			errs = append(errs, errors.New("SNAPSHOT_PATH is required for the file driver"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "mariadb":
		if c.Database.MariaDBDSN == "" {
			errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address of the web server.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
