package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"` // postgres only
	} `yaml:"database"`

	Transport struct {
		URL            string `yaml:"url"`
		Subject        string `yaml:"subject"`
		Queue          string `yaml:"queue"`
		ReceiveTimeout int    `yaml:"receiveTimeoutSeconds"`
	} `yaml:"transport"`

	Ingest struct {
		ProcessTimeoutSeconds int `yaml:"processTimeoutSeconds"`
		WriteAttempts         int `yaml:"writeAttempts"`
		WriteBackoffMS        int `yaml:"writeBackoffMS"`
	} `yaml:"ingest"`

	TSA struct {
		URL            string `yaml:"url"`
		CertFile       string `yaml:"certFile"`
		HashAlgorithm  string `yaml:"hashAlgorithm"` // sha256 | sha384 | sha512
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
		Attempts       int    `yaml:"attempts"`
		BackoffMS      int    `yaml:"backoffMS"`
		TLSCAFile      string `yaml:"tlsCAFile"`
	} `yaml:"tsa"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Auth struct {
		// client name -> api key; empty map disables auth
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Transport.ReceiveTimeout <= 0 {
		c.Transport.ReceiveTimeout = 10
	}
	if c.TSA.HashAlgorithm == "" {
		c.TSA.HashAlgorithm = "sha256"
	}
	if c.TSA.TimeoutSeconds <= 0 {
		c.TSA.TimeoutSeconds = 15
	}
	if c.TSA.Attempts <= 0 {
		c.TSA.Attempts = 3
	}
	if c.TSA.BackoffMS <= 0 {
		c.TSA.BackoffMS = 500
	}
	if c.Ingest.ProcessTimeoutSeconds <= 0 {
		c.Ingest.ProcessTimeoutSeconds = 120
	}
	if c.Ingest.WriteAttempts <= 0 {
		c.Ingest.WriteAttempts = 3
	}
	if c.Ingest.WriteBackoffMS <= 0 {
		c.Ingest.WriteBackoffMS = 250
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillRate <= 0 {
		c.RateLimit.RefillRate = 10
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.TSA.HashAlgorithm {
	case "sha256", "sha384", "sha512":
	default:
		return fmt.Errorf("unsupported tsa hash algorithm %q", c.TSA.HashAlgorithm)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		sslMode,
	)
}

// ReceiveTimeout as a duration
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.Transport.ReceiveTimeout) * time.Second
}

// TSATimeout as a duration
func (c *Config) TSATimeout() time.Duration {
	return time.Duration(c.TSA.TimeoutSeconds) * time.Second
}

// TSABackoff as a duration
func (c *Config) TSABackoff() time.Duration {
	return time.Duration(c.TSA.BackoffMS) * time.Millisecond
}

// ProcessTimeout as a duration
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Ingest.ProcessTimeoutSeconds) * time.Second
}

// WriteBackoff as a duration
func (c *Config) WriteBackoff() time.Duration {
	return time.Duration(c.Ingest.WriteBackoffMS) * time.Millisecond
}
