package backend

import (
	"fmt"
	"time"

	"billscan/internal/config"
	"billscan/internal/extract"
	"billscan/internal/services"
)

// Config holds what the factory needs to wire a process.
type Config struct {
	Role Role

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	GigaChatAPIKey             string
	GigaChatScope              string
	GigaChatInsecureSkipVerify bool
	OCRLanguages               []string

	Sync services.SyncConfig

	BillsCacheEntries int
	BillsCacheTTL     time.Duration

	// Extractor replaces the GigaChat extractor when set.
	Extractor extract.FieldExtractor
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config, role Role) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	if !role.IsValid() {
		return Config{}, fmt.Errorf("invalid backend role: %s", role)
	}

	return Config{
		Role: role,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleClientID:     appConfig.GoogleClientID,
		GoogleClientSecret: appConfig.GoogleClientSecret,
		GoogleRedirectURI:  appConfig.GoogleRedirectURI,

		GigaChatAPIKey:             appConfig.GigaChatAPIKey,
		GigaChatScope:              appConfig.GigaChatScope,
		GigaChatInsecureSkipVerify: appConfig.GigaChatInsecureSkipVerify,
		OCRLanguages:               appConfig.OCRLanguages,

		Sync: services.SyncConfig{
			Query:       appConfig.SyncQuery,
			MaxMessages: int64(appConfig.SyncMaxMessages),
			Concurrency: appConfig.SyncConcurrency,
		},

		BillsCacheEntries: appConfig.BillsCacheEntries,
		BillsCacheTTL:     appConfig.BillsCacheTTL,
	}, nil
}

// RunsPipeline reports whether this process executes sync jobs itself.
func (c Config) RunsPipeline() bool {
	return c.Role == WorkerRole || c.AMQPURL == ""
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid backend role: %s", c.Role)
	}
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if c.Role == WorkerRole && c.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required for the worker")
	}
	if c.RunsPipeline() && c.Extractor == nil && c.GigaChatAPIKey == "" {
		return fmt.Errorf("GIGACHAT_API_KEY is required where sync jobs run (worker, or server without AMQP)")
	}
	if c.BillsCacheEntries < 0 {
		return fmt.Errorf("invalid bills cache size %d", c.BillsCacheEntries)
	}
	return nil
}
