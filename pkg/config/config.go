package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".unraid-console"
	configFileName = "config.yaml"
	configDirMode  = 0700

	devJWTSecret = "dev-secret-unraid-console"
)

// Config is the daemon configuration
type Config struct {
	Port            int           `yaml:"port"`
	DataDir         string        `yaml:"data_dir"`
	JWTSecret       string        `yaml:"jwt_secret,omitempty"`
	FrontendURL     string        `yaml:"frontend_url"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	BuildTimeout    time.Duration `yaml:"build_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DevMode         bool          `yaml:"dev_mode"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port:            8080,
		DataDir:         filepath.Join(homeDir(), configDirName),
		FrontendURL:     "http://localhost:5174",
		ValidateTimeout: 10 * time.Second,
		BuildTimeout:    5 * time.Second,
		RequestTimeout:  30 * time.Second,
	}
}

// DefaultPath returns ~/.unraid-console/config.yaml
func DefaultPath() string {
	return filepath.Join(homeDir(), configDirName, configFileName)
}

// DatabasePath is the sqlite file holding the key-value store
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "console.db")
}

// KeyPath is the file holding the at-rest encryption key
func (c Config) KeyPath() string {
	return filepath.Join(c.DataDir, ".secret.key")
}

// Addr is the listen address
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadDotEnv loads .env from dir into the process environment. Variables
// already set are not overridden. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, then the YAML file at path
// (optional), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		if cfg.DevMode {
			cfg.JWTSecret = devJWTSecret
		} else {
			cfg.JWTSecret = randomSecret()
			log.Printf("[config] JWT_SECRET not set, using a random secret (sessions end on restart)")
		}
	}
	return cfg, nil
}

// Validate checks ranges
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ValidateTimeout <= 0 || c.BuildTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Save writes cfg to path as YAML. The JWT secret is never written.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.JWTSecret = ""
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.FrontendURL = v
	}
	for env, dst := range map[string]*time.Duration{
		"VALIDATE_TIMEOUT": &cfg.ValidateTimeout,
		"BUILD_TIMEOUT":    &cfg.BuildTimeout,
		"REQUEST_TIMEOUT":  &cfg.RequestTimeout,
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		*dst = d
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		cfg.DevMode = v == "true" || v == "1"
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return devJWTSecret
	}
	return hex.EncodeToString(b)
}
