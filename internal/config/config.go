package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	GeminiAPIKey         string `env:"GEMINI_API_KEY,required,notEmpty"`
	GeminiModel          string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiTransport      string `env:"GEMINI_TRANSPORT" envDefault:"sdk"` // sdk or rest
	GeminiTimeoutSeconds int    `env:"GEMINI_TIMEOUT_SECONDS" envDefault:"0"`

	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	MaxUploadBytes     int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	SessionIdleMinutes int    `env:"SESSION_IDLE_MINUTES" envDefault:"60"`
	CORSOriginSuffix   string `env:"CORS_ORIGIN_SUFFIX" envDefault:"vercel.app"`

	StorageBucket     string `env:"STORAGE_BUCKET"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	CredentialsFile   string `env:"GOOGLE_APPLICATION_CREDENTIALS_FILE"`
}

// DBConfig is loaded separately so the service can start without a database.
type DBConfig struct {
	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	switch cfg.GeminiTransport {
	case "sdk", "rest":
	default:
		return nil, fmt.Errorf("GEMINI_TRANSPORT must be sdk or rest, got %q", cfg.GeminiTransport)
	}
	return &cfg, nil
}

func LoadDB() (*DBConfig, error) {
	var cfg DBConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GeminiTimeout is zero when no client-side deadline should be applied.
func (c *Config) GeminiTimeout() time.Duration {
	if c.GeminiTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.GeminiTimeoutSeconds) * time.Second
}

func (c *Config) SessionIdle() time.Duration {
	if c.SessionIdleMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}
