package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kdimtricp/vmood/internal/classifier"
	"github.com/kdimtricp/vmood/internal/database"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const defaultFile = "config.yaml"

type Config struct {
	Port           string `yaml:"port"`
	UploadDir      string `yaml:"upload_dir"`
	MigrationsPath string `yaml:"migrations_path"`
	// FrameSize caps the longer edge of decoded frames. Zero keeps the
	// source resolution.
	FrameSize int `yaml:"frame_size"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Database   database.Config   `yaml:"database"`
	Pinata     gateway.Config    `yaml:"pinata"`
	Classifier classifier.Config `yaml:"classifier"`
	Engine     emotion.Config    `yaml:"engine"`
}

// ConfigError names the setting that failed to load or validate.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func Default() *Config {
	cfg := &Config{
		Port:           "8080",
		UploadDir:      "./uploads",
		MigrationsPath: "./migrations",
		FrameSize:      512,
		Database: database.Config{
			Type:       "sqlite",
			Host:       "localhost",
			Port:       5432,
			User:       "vmood",
			Password:   "vmood_dev",
			Name:       "vmood",
			SQLitePath: "./vmood.db",
		},
		Pinata: gateway.Config{
			MaxSize: 500 << 20,
			Timeout: 2 * time.Minute,
		},
		Classifier: *classifier.NewConfig(),
		Engine:     emotion.DefaultConfig(),
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads defaults, then the YAML file named by VMOOD_CONFIG (or
// config.yaml when present), then .env, then the process environment.
func Load() (*Config, error) {
	return load(os.Getenv("VMOOD_CONFIG"), ".env")
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()

	required := path != ""
	if !required {
		path = defaultFile
	}
	if err := cfg.readYAML(path); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// existing variables win over .env entries
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigError{Field: path, Err: err}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Port)
	str("UPLOAD_DIR", &c.UploadDir)
	str("MIGRATIONS_PATH", &c.MigrationsPath)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("DB_TYPE", &c.Database.Type)
	str("DB_PATH", &c.Database.SQLitePath)
	str("DB_HOST", &c.Database.Host)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)

	str("PINATA_JWT", &c.Pinata.JWT)
	str("PINATA_GATEWAY", &c.Pinata.Gateway)

	str("CLASSIFIER", &c.Classifier.Backend)
	str("CLASSIFIER_URL", &c.Classifier.URL)
	str("OPENAI_API_KEY", &c.Classifier.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.Classifier.OpenAIModel)
	str("OPENAI_BASE_URL", &c.Classifier.OpenAIBaseURL)
	str("GOOGLE_VISION_API_KEY", &c.Classifier.GoogleVisionKey)

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_PORT", &c.Database.Port},
		{"FRAME_SIZE", &c.FrameSize},
		{"ENGINE_STRIDE", &c.Engine.Stride},
		{"ENGINE_WINDOW", &c.Engine.Window},
		{"ENGINE_DIVISOR", &c.Engine.Divisor},
		{"ENGINE_WORKERS", &c.Engine.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: e.key, Err: err}
		}
		*e.dst = n
	}

	if v, ok := lookup("MAX_VIDEO_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return &ConfigError{Field: "MAX_VIDEO_SIZE", Err: err}
		}
		c.Pinata.MaxSize = n
	}
	if v, ok := lookup("ENGINE_SUPPRESS_NEUTRAL"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: "ENGINE_SUPPRESS_NEUTRAL", Err: err}
		}
		c.Engine.SuppressNeutral = b
	}
	if v, ok := lookup("CLASSIFIER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: "CLASSIFIER_TIMEOUT", Err: err}
		}
		c.Classifier.Timeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	checks := []struct {
		field string
		bad   bool
		msg   string
	}{
		{"engine.stride", c.Engine.Stride < 1, "must be at least 1"},
		{"engine.window", c.Engine.Window < 0, "must not be negative"},
		{"engine.divisor", c.Engine.Divisor < 1, "must be at least 1"},
		{"engine.workers", c.Engine.Workers < 1, "must be at least 1"},
		{"frame_size", c.FrameSize < 0, "must not be negative"},
		{"database.type", c.Database.Type != "sqlite" && c.Database.Type != "postgres", "must be sqlite or postgres"},
		{"log.format", c.Log.Format != "text" && c.Log.Format != "json", "must be text or json"},
	}
	for _, check := range checks {
		if check.bad {
			return &ConfigError{Field: check.field, Err: errors.New(check.msg)}
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return &ConfigError{Field: "log.level", Err: err}
	}
	return nil
}

// NewLogger builds a logger from the log settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
