package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/tradesim/internal/blob/s3"
	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/notify"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function. Redis and S3 members are
// nil when those backends are not configured.
type Dependencies struct {
	Book    *book.Book
	Monitor *book.Monitor
	Metrics *metrics.Metrics
	Model   *costmodel.Model

	// Redis mirror
	Redis     *redis.Client
	BookCache domain.BookCache
	SignalBus domain.SignalBus
	Leases    *redis.Leases

	// Blob storage
	S3         *s3blob.Client
	BlobReader domain.BlobReader

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the configuration reads from object storage.
func needsS3(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Mode, "replay") && strings.HasPrefix(cfg.Replay.Source, "s3://")
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Book: book.New(book.Config{
			Symbol:         cfg.Feed.Symbol,
			StaleThreshold: cfg.Book.StaleThreshold.Duration,
			TouchPolicy:    book.TouchPolicy(strings.ToLower(cfg.Book.TouchPolicy)),
		}, logger),
		Metrics: metrics.New(),
		Model:   costmodel.New(cfg.CostModel, logger),
	}
	deps.Monitor = book.NewMonitor(deps.Book, cfg.Book.StaleThreshold.Duration, nil)

	// --- Redis (optional book mirror) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.BookCache = redis.NewBookCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Leases = redis.NewLeases(redisClient)
	}

	// --- S3 blob storage (only when replaying from object storage) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
