package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig            `toml:"database"`
	Server    ServerConfig              `toml:"server"`
	Queue     QueueConfig               `toml:"queue"`
	Worker    WorkerConfig              `toml:"worker"`
	Storage   StorageConfig             `toml:"storage"`
	Notifier  NotifierConfig            `toml:"notifier"`
	Scheduler SchedulerConfig           `toml:"scheduler"`
	Platforms map[string]PlatformConfig `toml:"platforms"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port pair the API listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QueueConfig selects the broker backing the task and answer queues.
//
// Backend is either "memory" (single process) or "redis".
type QueueConfig struct {
	Backend        string        `toml:"backend"`
	RedisURL       string        `toml:"redis_url"`
	TaskQueue      string        `toml:"task_queue"`
	AnswerQueue    string        `toml:"answer_queue"`
	PollTimeout    time.Duration `toml:"poll_timeout"`
	RecoverOnStart bool          `toml:"recover_on_start"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	Concurrency   int           `toml:"concurrency"`
	FetchTimeout  time.Duration `toml:"fetch_timeout"`
	MaxArtifactMB int64         `toml:"max_artifact_mb"`
	RateLimit     float64       `toml:"rate_limit"`
}

// StorageConfig selects where fetched artifacts are kept.
//
// Backend is either "local" or "minio".
type StorageConfig struct {
	Backend  string      `toml:"backend"`
	MediaDir string      `toml:"media_dir"`
	Minio    MinioConfig `toml:"minio"`
}

// MinioConfig contains S3 compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// NotifierConfig contains the chat front-end callback settings.
// An empty WebhookURL logs notifications instead of sending them.
type NotifierConfig struct {
	WebhookURL string        `toml:"webhook_url"`
	Timeout    time.Duration `toml:"timeout"`
}

// SchedulerConfig contains the periodic playlist refresh settings.
type SchedulerConfig struct {
	Enabled      bool          `toml:"enabled"`
	RefreshSpec  string        `toml:"refresh_spec"`
	RefreshLease time.Duration `toml:"refresh_lease"`
	Upload       bool          `toml:"upload"`
}

// PlatformConfig describes one video platform: where its loader lives,
// which URLs belong to it and how canonical URLs are rebuilt from native ids.
//
// Patterns are regular expressions; the native id is taken from the named group "id"
// or, when absent, the first capture group. URL templates use a single %s verb.
type PlatformConfig struct {
	LoaderURL        string   `toml:"loader_url"`
	VideoURL         string   `toml:"video_url"`
	PlaylistURL      string   `toml:"playlist_url"`
	VideoPatterns    []string `toml:"video_patterns"`
	PlaylistPatterns []string `toml:"playlist_patterns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults of [DefaultConfig]. A file that declares
// any [platforms.<name>] table replaces the default platform set entirely.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	defaults := config.Platforms
	config.Platforms = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Platforms == nil {
		config.Platforms = defaults
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown queue backend %q", ErrInvalidConfig, c.Queue.Backend)
	}

	switch c.Storage.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker concurrency must be positive", ErrInvalidConfig)
	}

	for name, p := range c.Platforms {
		if len(p.VideoPatterns) == 0 && len(p.PlaylistPatterns) == 0 {
			return fmt.Errorf("%w: platform %s has no url patterns", ErrInvalidConfig, name)
		}
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
