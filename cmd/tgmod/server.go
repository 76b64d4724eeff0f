package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluesky-social/tgmod/automod/countstore"
	"github.com/bluesky-social/tgmod/automod/engine"
	"github.com/bluesky-social/tgmod/automod/flagstore"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/store"
	"github.com/bluesky-social/tgmod/automod/telegram"
	"github.com/bluesky-social/tgmod/automod/violation"
	"github.com/bluesky-social/tgmod/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	consumer *telegram.Consumer
	rdb      *redis.Client
}

type Config struct {
	TelegramToken    string
	TelegramEndpoint string
	PollTimeout      int
	Parallelism      int
	RedisURL         string
	PolicyCacheTTL   time.Duration
	SlackWebhookURL  string
	SeedFilters      bool
	Logger           *slog.Logger
}

func NewServer(ctx context.Context, st *store.GormStore, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.SeedFilters {
		n, err := policy.SeedDefaultTerms(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("seeding filter list: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default filter list", "terms", n)
		}
	}

	var counters countstore.CountStore
	var caches policy.Caches
	var flags flagstore.FlagStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		counters = countstore.NewRedisCountStore(rdb)
		caches = policy.NewRedisCaches(rdb, config.PolicyCacheTTL, 10*time.Second)
		flags = flagstore.NewRedisFlagStore(rdb)
	} else {
		counters = countstore.NewMemCountStore()
		caches = policy.NewMemCaches(5_000, config.PolicyCacheTTL)
		flags = flagstore.NewMemFlagStore()
	}

	// long polling holds requests open for the poll timeout
	tgClient, err := telegram.NewClient(telegram.ClientConfig{
		Token:      config.TelegramToken,
		Endpoint:   config.TelegramEndpoint,
		HTTPClient: util.RobustHTTPClientWithTimeout(time.Duration(config.PollTimeout+30)*time.Second, logger),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.Engine{
		Logger:   logger.With("system", "automod"),
		Policies: policy.NewCachedStore(st, caches, logger),
		Tracker:  violation.NewTracker(st, logger),
		Audit:    st,
		Platform: tgClient,
		Counters: counters,
		Flags:    flags,
	}
	if config.SlackWebhookURL != "" {
		logger.Info("configuring slack admin notifications")
		eng.Notifier = &engine.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			Client:          util.RobustHTTPClient(),
		}
	}

	consumer := telegram.Consumer{
		Parallelism: config.Parallelism,
		Logger:      logger.With("system", "consumer"),
		RedisClient: rdb,
		Engine:      &eng,
		Client:      tgClient,
		PollTimeout: config.PollTimeout,
		BotUsername: tgClient.BotUsername(),
	}

	buildInfo.WithLabelValues(versioninfo.Short()).Set(1)

	return &Server{
		logger:   logger,
		engine:   &eng,
		consumer: &consumer,
		rdb:      rdb,
	}, nil
}

// Runs the update consumer and the metrics endpoint until the context is done.
func (s *Server) Run(ctx context.Context, metricsListen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("starting metrics endpoint", "listen", metricsListen)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		return s.consumer.Run(ctx)
	})
	eg.Go(func() error {
		return s.consumer.RunPersistOffset(ctx)
	})

	err := eg.Wait()
	if s.rdb != nil {
		if cerr := s.rdb.Close(); cerr != nil {
			s.logger.Warn("closing redis client", "err", cerr)
		}
	}
	return err
}
