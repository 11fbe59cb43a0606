package shared

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by [ApplyEnv].
const EnvPrefix = "TUBEQ_"

// LoadDotEnv loads a .env file into the process environment without overriding variables that are already set.
//
// An empty path searches the working directory and its parents. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = findDotEnv()
		if path == "" {
			return nil
		}
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func findDotEnv() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides config values with TUBEQ_* environment variables.
//
// Secrets (redis url, object storage keys, webhook url) are expected to come from here rather than the TOML file.
func ApplyEnv(c *Config) error {
	strs := map[string]*string{
		"DATABASE_PATH":    &c.Database.Path,
		"SERVER_HOST":      &c.Server.Host,
		"QUEUE_BACKEND":    &c.Queue.Backend,
		"REDIS_URL":        &c.Queue.RedisURL,
		"STORAGE_BACKEND":  &c.Storage.Backend,
		"MEDIA_DIR":        &c.Storage.MediaDir,
		"MINIO_ENDPOINT":   &c.Storage.Minio.Endpoint,
		"MINIO_ACCESS_KEY": &c.Storage.Minio.AccessKey,
		"MINIO_SECRET_KEY": &c.Storage.Minio.SecretKey,
		"MINIO_BUCKET":     &c.Storage.Minio.Bucket,
		"WEBHOOK_URL":      &c.Notifier.WebhookURL,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":        &c.Server.Port,
		"WORKER_CONCURRENCY": &c.Worker.Concurrency,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
		*dst = n
	}
	return nil
}
