package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Storage and queue drivers
const (
	StorageDriverLocal = "local"
	StorageDriverR2    = "r2"

	QueueDriverLocal = "local"
	QueueDriverAsynq = "asynq"
)

// maxTotalSamples keeps every generated sample worth at least one progress point.
const maxTotalSamples = 75

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Vision   VisionConfig
	Synth    SynthConfig
	Storage  StorageConfig
	R2       R2Config
	Queue    QueueConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	ApiDomain   string
	BodyLimitMB int
}

type PipelineConfig struct {
	TotalSamples  int
	MaxConcurrent int
	WorkDir       string
}

// VisionConfig points at an OpenAI-compatible chat completions API
// (Ollama's /v1 endpoint or Groq).
type VisionConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	VisionModel string
	TextModel   string
	Timeout     int // seconds
}

type SynthConfig struct {
	ServiceURL string
	Timeout    int // seconds
	Steps      int
	Duration   int // seconds
	SampleRate int
}

type StorageConfig struct {
	Driver   string
	LocalDir string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Prefix          string
}

type QueueConfig struct {
	Driver      string
	Concurrency int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("VISION_API_KEY")
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("pipeline.total_samples", "PIPELINE_TOTAL_SAMPLES")
	_ = v.BindEnv("pipeline.max_concurrent", "PIPELINE_MAX_CONCURRENT")
	_ = v.BindEnv("pipeline.work_dir", "PIPELINE_WORK_DIR")
	_ = v.BindEnv("vision.enabled", "VISION_ENABLED")
	_ = v.BindEnv("vision.base_url", "VISION_BASE_URL")
	_ = v.BindEnv("vision.api_key", "VISION_API_KEY")
	_ = v.BindEnv("vision.vision_model", "VISION_MODEL")
	_ = v.BindEnv("vision.text_model", "VISION_TEXT_MODEL")
	_ = v.BindEnv("vision.timeout", "VISION_TIMEOUT")
	_ = v.BindEnv("synth.service_url", "SYNTH_SERVICE_URL")
	_ = v.BindEnv("synth.timeout", "SYNTH_TIMEOUT")
	_ = v.BindEnv("synth.steps", "SYNTH_STEPS")
	_ = v.BindEnv("synth.duration", "SYNTH_DURATION")
	_ = v.BindEnv("synth.sample_rate", "SYNTH_SAMPLE_RATE")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.local_dir", "STORAGE_LOCAL_DIR")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.prefix", "R2_PREFIX")
	_ = v.BindEnv("queue.driver", "QUEUE_DRIVER")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 50)

	v.SetDefault("pipeline.total_samples", 10)
	v.SetDefault("pipeline.max_concurrent", 2)
	v.SetDefault("pipeline.work_dir", filepath.Join(os.TempDir(), "samplepack"))

	// Ollama defaults
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.base_url", "http://localhost:11434/v1")
	v.SetDefault("vision.vision_model", "llama3.2-vision")
	v.SetDefault("vision.text_model", "llama3.2")
	v.SetDefault("vision.timeout", 120)

	// TangoFlux defaults
	v.SetDefault("synth.timeout", 300)
	v.SetDefault("synth.steps", 50)
	v.SetDefault("synth.duration", 10)
	v.SetDefault("synth.sample_rate", 44100)

	v.SetDefault("storage.driver", StorageDriverLocal)
	v.SetDefault("r2.prefix", "samplepack")

	v.SetDefault("queue.driver", QueueDriverLocal)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	workDir := v.GetString("pipeline.work_dir")
	localDir := v.GetString("storage.local_dir")
	if localDir == "" {
		localDir = filepath.Join(workDir, "archives")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			ApiDomain:   v.GetString("server.api_domain"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Pipeline: PipelineConfig{
			TotalSamples:  v.GetInt("pipeline.total_samples"),
			MaxConcurrent: v.GetInt("pipeline.max_concurrent"),
			WorkDir:       workDir,
		},
		Vision: VisionConfig{
			Enabled:     v.GetBool("vision.enabled"),
			BaseURL:     v.GetString("vision.base_url"),
			APIKey:      v.GetString("vision.api_key"),
			VisionModel: v.GetString("vision.vision_model"),
			TextModel:   v.GetString("vision.text_model"),
			Timeout:     v.GetInt("vision.timeout"),
		},
		Synth: SynthConfig{
			ServiceURL: v.GetString("synth.service_url"),
			Timeout:    v.GetInt("synth.timeout"),
			Steps:      v.GetInt("synth.steps"),
			Duration:   v.GetInt("synth.duration"),
			SampleRate: v.GetInt("synth.sample_rate"),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(v.GetString("storage.driver")),
			LocalDir: localDir,
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			Prefix:          v.GetString("r2.prefix"),
		},
		Queue: QueueConfig{
			Driver:      strings.ToLower(v.GetString("queue.driver")),
			Concurrency: v.GetInt("queue.concurrency"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.TotalSamples < 1 || c.Pipeline.TotalSamples > maxTotalSamples {
		return fmt.Errorf("pipeline.total_samples must be between 1 and %d, got %d", maxTotalSamples, c.Pipeline.TotalSamples)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be at least 1, got %d", c.Pipeline.MaxConcurrent)
	}
	switch c.Storage.Driver {
	case StorageDriverLocal, StorageDriverR2:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Queue.Driver {
	case QueueDriverLocal, QueueDriverAsynq:
	default:
		return fmt.Errorf("unknown queue.driver %q", c.Queue.Driver)
	}
	if c.Synth.SampleRate <= 0 {
		return fmt.Errorf("synth.sample_rate must be positive, got %d", c.Synth.SampleRate)
	}
	return nil
}
