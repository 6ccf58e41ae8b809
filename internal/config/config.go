package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	CronSecret          string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	S3Region       string
	S3Bucket       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	Port     string
	Timezone string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("SHAREDMAIL_ENV")
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
		EncryptionKeyBase64: os.Getenv("SHAREDMAIL_ENCRYPTION_KEY_BASE64"),
		CronSecret:          os.Getenv("SHAREDMAIL_CRON_SECRET"),
		GoogleClientID:      os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:   os.Getenv("GOOGLE_REDIRECT_URI"),
		DBHost:              getEnvOrDefault("SHAREDMAIL_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("SHAREDMAIL_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("SHAREDMAIL_DB_USER", "sharedmail"),
		DBPassword:          os.Getenv("SHAREDMAIL_DB_PASSWORD"),
		DBName:              getEnvOrDefault("SHAREDMAIL_DB_NAME", "sharedmail"),
		DBSSLMode:           getEnvOrDefault("SHAREDMAIL_DB_SSLMODE", "disable"),
		S3Region:            getEnvOrDefault("SHAREDMAIL_S3_REGION", "us-east-1"),
		S3Bucket:            getEnvOrDefault("SHAREDMAIL_S3_BUCKET", "attachments"),
		S3BaseEndpoint:      os.Getenv("SHAREDMAIL_S3_ENDPOINT"),
		S3AccessKey:         os.Getenv("SHAREDMAIL_S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("SHAREDMAIL_S3_SECRET_KEY"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("SHAREDMAIL_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.CronSecret == "" {
		return fmt.Errorf("SHAREDMAIL_CRON_SECRET is required")
	}

	if c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleRedirectURI == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI are required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("SHAREDMAIL_DB_PASSWORD is required")
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

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
