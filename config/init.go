package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	GmailConfig    *GmailConfig
	PlanConfig     *PlanConfig
	ExecutorConfig *ExecutorConfig
	ScanConfig     *ScanConfig
	RabbitMQConfig *RabbitMQConfig
	StorageConfig  *StorageConfig
}

func InitConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		GmailConfig:    &GmailConfig{},
		PlanConfig:     &PlanConfig{},
		ExecutorConfig: &ExecutorConfig{},
		ScanConfig:     &ScanConfig{},
		RabbitMQConfig: &RabbitMQConfig{},
		StorageConfig:  &StorageConfig{},
	}

	if err := env.Parse(config); err != nil {
		return nil, errors.Wrap(err, "error loading mailclean config")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch {
	case c.PlanConfig.UnsubscribeThreshold < 0:
		return errors.New("PLAN_UNSUBSCRIBE_THRESHOLD must not be negative")
	case c.PlanConfig.PlanTTL <= 0:
		return errors.New("PLAN_TTL must be positive")
	case c.PlanConfig.SuppressionLabel == "":
		return errors.New("PLAN_SUPPRESSION_LABEL must be set")
	case c.ExecutorConfig.MaxMessages <= 0:
		return errors.New("EXECUTOR_MAX_MESSAGES must be positive")
	case c.ExecutorConfig.ProviderConcurrency <= 0:
		return errors.New("EXECUTOR_PROVIDER_CONCURRENCY must be positive")
	case c.ExecutorConfig.MaxRetries < 0:
		return errors.New("EXECUTOR_MAX_RETRIES must not be negative")
	case c.GmailConfig.RequestsPerSec <= 0:
		return errors.New("GMAIL_RPS must be positive")
	case c.ScanConfig.MaxMessages <= 0:
		return errors.New("SCAN_MAX_MESSAGES must be positive")
	}
	return nil
}
