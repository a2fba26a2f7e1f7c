package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docchat/internal/devserver"
	"docchat/internal/guard"
	"docchat/internal/poll"
)

// Version is reported in the User-Agent and by `docchat version`.
const Version = "0.4.0"

const envPrefix = "DOCCHAT_"

// Config is the merged configuration. Every field can come from the config
// file, the environment or a flag.
type Config struct {
	API    APIConfig    `yaml:"api" toml:"api"`
	Data   DataConfig   `yaml:"data" toml:"data"`
	Limits LimitsConfig `yaml:"limits" toml:"limits"`
	Poll   PollConfig   `yaml:"poll" toml:"poll"`
	Log    LogConfig    `yaml:"log" toml:"log"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

type APIConfig struct {
	URL            string `yaml:"url" toml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

type DataConfig struct {
	Dir       string `yaml:"dir" toml:"dir"`
	DBPath    string `yaml:"db_path" toml:"db_path"`
	Profile   string `yaml:"profile" toml:"profile"`
	BrowseDir string `yaml:"browse_dir" toml:"browse_dir"`
}

type LimitsConfig struct {
	MaxRooms       int `yaml:"max_rooms" toml:"max_rooms"`
	MaxDocsPerRoom int `yaml:"max_docs_per_room" toml:"max_docs_per_room"`
	MaxFileSizeMB  int `yaml:"max_file_size_mb" toml:"max_file_size_mb"`
}

type PollConfig struct {
	IntervalMS  int `yaml:"interval_ms" toml:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// ServerConfig drives the bundled development backend.
type ServerConfig struct {
	Addr              string `yaml:"addr" toml:"addr"`
	DBPath            string `yaml:"db_path" toml:"db_path"`
	JWTSecret         string `yaml:"jwt_secret" toml:"jwt_secret"`
	ProcessingDelayMS int    `yaml:"processing_delay_ms" toml:"processing_delay_ms"`
	RegisterPerDay    int    `yaml:"register_per_day" toml:"register_per_day"`
	UploadsPerDay     int    `yaml:"uploads_per_day" toml:"uploads_per_day"`
	QuestionsPerDay   int    `yaml:"questions_per_day" toml:"questions_per_day"`
}

// Default returns the built-in configuration.
func Default() *Config {
	limits := guard.DefaultLimits()
	dev := devserver.DefaultConfig()
	dataDir := DefaultDataDir()
	return &Config{
		API: APIConfig{
			URL:            "http://localhost:8000/api/v1",
			TimeoutSeconds: 30,
		},
		Data: DataConfig{
			Dir:     dataDir,
			Profile: "default",
		},
		Limits: LimitsConfig{
			MaxRooms:       limits.MaxRooms,
			MaxDocsPerRoom: limits.MaxDocsPerRoom,
			MaxFileSizeMB:  int(limits.MaxFileSize / (1024 * 1024)),
		},
		Poll: PollConfig{
			IntervalMS:  int(poll.DefaultInterval / time.Millisecond),
			MaxAttempts: poll.DefaultMaxAttempts,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:              ":8000",
			JWTSecret:         dev.JWTSecret,
			ProcessingDelayMS: int(dev.ProcessingDelay / time.Millisecond),
			RegisterPerDay:    dev.RegisterPerDay,
			UploadsPerDay:     dev.UploadsPerDay,
			QuestionsPerDay:   dev.QuestionsPerDay,
		},
	}
}

// Load merges defaults, the config file, a .env file and DOCCHAT_* variables,
// in that order. An explicit path must exist; the default path is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findDefaultConfig()
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	overrideByEnv(cfg)
	cfg.FillPaths()
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	return nil
}

func findDefaultConfig() string {
	dir := DefaultConfigDir()
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// loadDotEnv reads KEY=VALUE pairs without overriding variables that are
// already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func overrideByEnv(cfg *Config) {
	cfg.API.URL = getEnv("API_URL", cfg.API.URL)
	cfg.API.TimeoutSeconds = getEnvAsInt("TIMEOUT_SECONDS", cfg.API.TimeoutSeconds)

	cfg.Data.Dir = getEnv("DATA_DIR", cfg.Data.Dir)
	cfg.Data.DBPath = getEnv("DB_PATH", cfg.Data.DBPath)
	cfg.Data.Profile = getEnv("PROFILE", cfg.Data.Profile)
	cfg.Data.BrowseDir = getEnv("BROWSE_DIR", cfg.Data.BrowseDir)

	cfg.Limits.MaxRooms = getEnvAsInt("MAX_ROOMS", cfg.Limits.MaxRooms)
	cfg.Limits.MaxDocsPerRoom = getEnvAsInt("MAX_DOCS_PER_ROOM", cfg.Limits.MaxDocsPerRoom)
	cfg.Limits.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", cfg.Limits.MaxFileSizeMB)

	cfg.Poll.IntervalMS = getEnvAsInt("POLL_INTERVAL_MS", cfg.Poll.IntervalMS)
	cfg.Poll.MaxAttempts = getEnvAsInt("POLL_MAX_ATTEMPTS", cfg.Poll.MaxAttempts)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.DBPath = getEnv("SERVER_DB_PATH", cfg.Server.DBPath)
	cfg.Server.JWTSecret = getEnv("JWT_SECRET", cfg.Server.JWTSecret)
	cfg.Server.ProcessingDelayMS = getEnvAsInt("PROCESSING_DELAY_MS", cfg.Server.ProcessingDelayMS)
	cfg.Server.RegisterPerDay = getEnvAsInt("REGISTER_PER_DAY", cfg.Server.RegisterPerDay)
	cfg.Server.UploadsPerDay = getEnvAsInt("UPLOADS_PER_DAY", cfg.Server.UploadsPerDay)
	cfg.Server.QuestionsPerDay = getEnvAsInt("QUESTIONS_PER_DAY", cfg.Server.QuestionsPerDay)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// FillPaths derives the file locations left empty from the data dir.
func (c *Config) FillPaths() {
	if c.Data.Dir == "" {
		c.Data.Dir = DefaultDataDir()
	}
	if c.Data.DBPath == "" {
		c.Data.DBPath = filepath.Join(c.Data.Dir, "docchat.db")
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = filepath.Join(c.Data.Dir, "devserver.db")
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Data.Dir, "docchat.log")
	}
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return errors.New("api url is required")
	}
	if !strings.HasPrefix(c.API.URL, "http://") && !strings.HasPrefix(c.API.URL, "https://") {
		return fmt.Errorf("api url %q must start with http:// or https://", c.API.URL)
	}
	if c.Poll.IntervalMS < 0 || c.Poll.MaxAttempts < 0 {
		return errors.New("poll settings must not be negative")
	}
	return nil
}

func (c *Config) GuardLimits() guard.Limits {
	limits := guard.DefaultLimits()
	limits.MaxRooms = c.Limits.MaxRooms
	limits.MaxDocsPerRoom = c.Limits.MaxDocsPerRoom
	if c.Limits.MaxFileSizeMB > 0 {
		limits.MaxFileSize = int64(c.Limits.MaxFileSizeMB) * 1024 * 1024
	}
	return limits
}

func (c *Config) PollOptions() poll.Options {
	return poll.Options{
		Interval:    time.Duration(c.Poll.IntervalMS) * time.Millisecond,
		MaxAttempts: c.Poll.MaxAttempts,
	}
}

func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// DevServer maps the server section onto the backend's own config. The
// backend enforces the same room and document caps as the client.
func (c *Config) DevServer() devserver.Config {
	limits := c.GuardLimits()
	return devserver.Config{
		JWTSecret:       c.Server.JWTSecret,
		ProcessingDelay: time.Duration(c.Server.ProcessingDelayMS) * time.Millisecond,
		MaxFileSize:     limits.MaxFileSize,
		MaxRooms:        limits.MaxRooms,
		MaxDocsPerRoom:  limits.MaxDocsPerRoom,
		RegisterPerDay:  c.Server.RegisterPerDay,
		UploadsPerDay:   c.Server.UploadsPerDay,
		QuestionsPerDay: c.Server.QuestionsPerDay,
	}
}

func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// DefaultDataDir returns a per-user directory for the token store and logs.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docchat")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "DocChat")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "DocChat")
		}
		return filepath.Join(home, ".local", "share", "docchat")
	}
	return filepath.Join(".", ".docchat")
}

// DefaultConfigDir is where Load looks for config.yaml or config.toml.
func DefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "docchat")
	}
	return filepath.Join(DefaultDataDir(), "config")
}
