package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "taskhub.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/taskhub"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// DefaultEnvFile is read when no env file is given and it exists
	DefaultEnvFile = ".env"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// ConfigPath replaces the user and project config lookup when set.
	ConfigPath string
	// EnvFile is loaded into the process environment before overrides.
	EnvFile string

	lookupEnv func(string) (string, bool)
	workDir   func() (string, error)
	homeDir   func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:    logger,
		lookupEnv: os.LookupEnv,
		workDir:   os.Getwd,
		homeDir:   os.UserHomeDir,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/taskhub/config.yaml)
// 3. Project config (taskhub.yaml in current or parent directories),
//    or ConfigPath alone when set
// 4. Env file (.env), which never overrides variables already set
// 5. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	for _, path := range l.configPaths() {
		fileConfig, err := LoadFromFile(path)
		if errors.Is(err, os.ErrNotExist) && path != l.ConfigPath {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := config.Merge(fileConfig); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", path))
	}

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Files returns the config files Load reads, for watching.
func (l *Loader) Files() []string {
	var files []string
	for _, path := range l.configPaths() {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	return files
}

func (l *Loader) configPaths() []string {
	if l.ConfigPath != "" {
		return []string{l.ConfigPath}
	}
	var paths []string
	if p := l.userConfigPath(); p != "" {
		paths = append(paths, p)
	}
	if p := l.findProjectConfig(); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("no home directory")
	}
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return err
	}
	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for taskhub.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir, err := l.workDir()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (l *Loader) loadEnvFile() error {
	path := l.EnvFile
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
		if dir, err := l.workDir(); err == nil {
			path = filepath.Join(dir, DefaultEnvFile)
		}
	}
	err := godotenv.Load(path)
	if err == nil {
		l.logger.Debug("Loaded env file", slog.String("path", path))
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// applyEnv overlays the recognised environment variables.
func (l *Loader) applyEnv(c *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	num("PORT", &c.Server.Port)
	str("NODE_ENV", &c.Server.Environment)
	str("APP_ENV", &c.Server.Environment)
	if v, ok := l.lookupEnv("CLIENT_URL"); ok && v != "" {
		c.Server.ClientOrigins = splitList(v)
	}
	// RATE_LIMIT_WINDOW is in minutes.
	if v, ok := l.lookupEnv("RATE_LIMIT_WINDOW"); ok && v != "" {
		if mins, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			c.Server.RateLimitWindow = time.Duration(mins) * time.Minute
		} else {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err))
		}
	}
	num("RATE_LIMIT_MAX_REQUESTS", &c.Server.RateLimitMax)
	num("MAX_CONNECTIONS", &c.Server.MaxConnections)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	if v, ok := l.lookupEnv("JWT_EXPIRE"); ok && v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("JWT_EXPIRE: %w", err))
		} else {
			c.Auth.JWTExpire = d
		}
	}
	num("BCRYPT_COST", &c.Auth.BcryptCost)

	str("DATABASE_PATH", &c.Database.Path)
	str("UPLOAD_DIR", &c.Uploads.Dir)
	str("NATS_URL", &c.NATS.URL)
	str("LOG_LEVEL", &c.Log.Level)
	if v, ok := l.lookupEnv("ENFORCE_STATE_TRANSITIONS"); ok && v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ENFORCE_STATE_TRANSITIONS: %w", err))
		} else {
			c.Workflow.EnforceTransitions = b
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseDuration accepts Go durations plus a day suffix ("7d") and bare
// seconds ("3600").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if _, err := strconv.Atoi(s); err == nil {
		// cast reads bare integers as nanoseconds.
		d *= time.Second
	}
	return d, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}
