package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billscan/internal/amqp"
	"billscan/internal/auth"
	"billscan/internal/cache"
	"billscan/internal/core"
	"billscan/internal/extract"
	"billscan/internal/gmail"
	"billscan/internal/metrics"
	"billscan/internal/services"
	"billscan/internal/storage"
)

// ErrNoRefreshToken means the user never granted offline mail access.
var ErrNoRefreshToken = errors.New("user has no Google refresh token, sign in again")

const cacheCleanupInterval = 5 * time.Minute

// New opens storage, the broker and the extraction pipeline as the role
// needs them. Close the returned backend to release everything.
func New(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("role", config.Role.String())

	b := &Backend{Metrics: metrics.New()}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	b.Repo = repo
	b.onClose(repo.Close)

	var billCache cache.Cache[int64, []core.Bill]
	if config.BillsCacheEntries > 0 {
		lru := cache.NewLRUCache[int64, []core.Bill](config.BillsCacheEntries, config.BillsCacheTTL)
		b.Caches = cache.NewManager()
		b.Caches.Register("bills", lru)
		b.Caches.StartCleanup(cacheCleanupInterval)
		b.onClose(func() error { b.Caches.Stop(); return nil })
		billCache = lru
	}
	b.Bills = services.NewBillService(repo, billCache)

	b.OAuth = auth.NewGoogleOAuth(config.GoogleClientID, config.GoogleClientSecret, config.GoogleRedirectURI)

	if config.AMQPURL != "" {
		broker, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err == nil:
			b.Broker = broker
			b.onClose(broker.Close)
			logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		case config.Role == WorkerRole:
			_ = b.Close()
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		default:
			logger.Warn("Failed to initialize AMQP client, running syncs in-process", "error", err)
			config.AMQPURL = ""
		}
	}

	deps := services.SyncDeps{
		Store:   repo,
		Bills:   b.Bills,
		Metrics: b.Metrics,
	}
	if config.Role == ServerRole && b.Broker != nil {
		deps.Publisher = b.Broker
	}

	if config.RunsPipeline() {
		extractor := config.Extractor
		if extractor == nil {
			giga, err := extract.NewGigaChatExtractor(ctx, config.GigaChatAPIKey, config.GigaChatScope, config.GigaChatInsecureSkipVerify)
			if err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("failed to initialize field extractor: %w", err)
			}
			b.onClose(giga.Close)
			extractor = giga
		}

		reader := extract.NewDocumentReader(config.OCRLanguages)
		deps.Reader = reader
		deps.Fetcher = extract.NewFetcher(reader, nil)
		deps.Extractor = extractor
		deps.Mailboxes = gmailMailboxes(b.OAuth)
	}

	b.Sync = services.NewSyncService(deps, config.Sync)

	logger.Info("Initialized backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", b.Broker != nil,
		"runs_pipeline", config.RunsPipeline())
	return b, nil
}

// gmailMailboxes opens a user's Gmail with their stored refresh token.
func gmailMailboxes(oauth *auth.GoogleOAuth) services.MailboxFactory {
	return func(ctx context.Context, user core.User) (services.Mailbox, error) {
		if user.GoogleRefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		mb, err := gmail.NewClient(ctx, oauth.TokenSource(ctx, user.GoogleRefreshToken))
		if err != nil {
			return nil, err
		}
		return mb, nil
	}
}
