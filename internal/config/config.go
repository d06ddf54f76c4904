package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	APIToken            string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string

	// Dispatch policy.
	GlobalDailyCap   int
	BatchCeiling     int
	SendDelay        time.Duration
	DispatchInterval time.Duration
	DispatchWorkers  int

	// Outbound message shape.
	Subject        string
	AttachmentPath string

	// Ingestion policy.
	IngestWindow  int
	SMTPUseTLS    bool
	IMAPUseTLS    bool
	IdleListeners bool
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILWISE_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("MAILWISE_ENCRYPTION_KEY_BASE64"),
		APIToken:            os.Getenv("MAILWISE_API_TOKEN"),
		DBHost:              getEnvOrDefault("MAILWISE_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("MAILWISE_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("MAILWISE_DB_USER", "mailwise"),
		DBPassword:          os.Getenv("MAILWISE_DB_PASSWORD"),
		DBName:              getEnvOrDefault("MAILWISE_DB_NAME", "mailwise"),
		DBSSLMode:           getEnvOrDefault("MAILWISE_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
		GlobalDailyCap:      getEnvIntOrDefault("MAILWISE_GLOBAL_DAILY_CAP", 100),
		BatchCeiling:        getEnvIntOrDefault("MAILWISE_BATCH_CEILING", 50),
		SendDelay:           getEnvDurationOrDefault("MAILWISE_SEND_DELAY", 5*time.Minute),
		DispatchInterval:    getEnvDurationOrDefault("MAILWISE_DISPATCH_INTERVAL", 2*time.Minute),
		DispatchWorkers:     getEnvIntOrDefault("MAILWISE_DISPATCH_WORKERS", 1),
		Subject:             getEnvOrDefault("MAILWISE_SUBJECT", "Job Application: Software Developer"),
		AttachmentPath:      os.Getenv("MAILWISE_ATTACHMENT_PATH"),
		IngestWindow:        getEnvIntOrDefault("MAILWISE_INGEST_WINDOW", 300),
		SMTPUseTLS:          getEnvBoolOrDefault("MAILWISE_SMTP_TLS", true),
		IMAPUseTLS:          getEnvBoolOrDefault("MAILWISE_IMAP_TLS", true),
		IdleListeners:       getEnvBoolOrDefault("MAILWISE_IDLE_LISTENERS", false),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MAILWISE_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MAILWISE_DB_PASSWORD is required")
	}

	if c.GlobalDailyCap <= 0 {
		return fmt.Errorf("MAILWISE_GLOBAL_DAILY_CAP must be positive")
	}

	if c.BatchCeiling <= 0 {
		return fmt.Errorf("MAILWISE_BATCH_CEILING must be positive")
	}

	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("MAILWISE_DISPATCH_WORKERS must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// Location returns the timezone used for day-boundary calculations. Falls back
// to UTC when the configured zone cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
