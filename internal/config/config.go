package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/maestro-analyzer/internal/application/retry"
)

type Config struct {
	Server struct {
		Port           int               `yaml:"port" validate:"min=1,max=65535"`
		ReadTimeout    time.Duration     `yaml:"readTimeout"`
		WriteTimeout   time.Duration     `yaml:"writeTimeout"`
		AllowedOrigins []string          `yaml:"allowedOrigins"`
		APIKeys        map[string]string `yaml:"apiKeys"` // tenant -> key
		RateLimit      struct {
			PerSecond float64 `yaml:"perSecond" validate:"gte=0"`
			Burst     int     `yaml:"burst" validate:"gte=0"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=json text"`
	} `yaml:"log"`

	LLM struct {
		Provider     string        `yaml:"provider" validate:"oneof=google openai ollama"`
		APIKey       string        `yaml:"apiKey"`
		Model        string        `yaml:"model"`
		BaseURL      string        `yaml:"baseURL"`
		OllamaServer string        `yaml:"ollamaServer"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxTokens    int           `yaml:"maxTokens" validate:"gte=0"`
	} `yaml:"llm"`

	Retry retry.Config `yaml:"retry"`

	Storage struct {
		Driver string `yaml:"driver" validate:"oneof=none mysql postgres badger"`
	} `yaml:"storage"`

	Database struct {
		DSN         string        `yaml:"dsn"` // wins over the fields below
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port"`
		User        string        `yaml:"user"`
		Password    string        `yaml:"password"`
		Name        string        `yaml:"name"`
		SSLMode     string        `yaml:"sslMode"`
		MaxOpen     int           `yaml:"maxOpen"`
		MaxIdle     int           `yaml:"maxIdle"`
		MaxLifetime time.Duration `yaml:"maxLifetime"`
	} `yaml:"database"`

	Badger struct {
		Path       string        `yaml:"path"`
		InMemory   bool          `yaml:"inMemory"`
		SyncWrites bool          `yaml:"syncWrites"`
		GCInterval time.Duration `yaml:"gcInterval"`
	} `yaml:"badger"`

	Minio struct {
		Enabled    bool          `yaml:"enabled"`
		Endpoint   string        `yaml:"endpoint" validate:"required_if=Enabled true"`
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName" validate:"required_if=Enabled true"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		PresignTTL time.Duration `yaml:"presignTTL"`
	} `yaml:"minio"`

	Report struct {
		Author string `yaml:"author"`
	} `yaml:"report"`
}

// Default returns a config that runs without any external service
// except the LLM provider.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load baca file config, isi default lalu override dari env.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads .env style files into the process env. Missing files
// are skipped, existing env vars are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.RateLimit.PerSecond == 0 {
		c.Server.RateLimit.PerSecond = 5
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "google"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 2 * time.Minute
	}
	c.Retry = c.Retry.Merge(retry.DefaultConfig())
	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 10
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = 30 * time.Minute
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Badger.Path == "" {
		c.Badger.Path = "data/badger"
	}
	if c.Badger.GCInterval == 0 {
		c.Badger.GCInterval = 5 * time.Minute
	}
}

// applyEnv overrides from env, getenv diinject supaya gampang ditest.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("OLLAMA_SERVER_ADDRESS"); v != "" {
		c.LLM.OllamaServer = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		case "google":
			c.LLM.APIKey = firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY"))
		}
	}
	if v := getenv("MAESTRO_API_KEYS"); v != "" {
		c.Server.APIKeys = parseAPIKeys(v)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks enum fields and ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// parseAPIKeys reads "tenant:key,tenant2:key2".
func parseAPIKeys(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		tenant, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || tenant == "" || key == "" {
			continue
		}
		out[tenant] = key
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SlogLevel maps log.level to a slog level, info on anything unknown.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
