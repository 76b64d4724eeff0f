package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/tgmod/automod/store"
	"github.com/bluesky-social/tgmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "tgmod",
		Usage:   "group chat moderation bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite or postgres)",
			Value:   "sqlite://data/tgmod/tgmod.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.BoolFlag{
			Name:    "enable-db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"TGMOD_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"TGMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json or text)",
			Value:   "json",
			EnvVars: []string{"TGMOD_LOG_FORMAT", "LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		filtersCmd,
		settingsCmd,
		logsCmd,
		statsCmd,
		userCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(os.Stdout, cctx.String("log-level"), cctx.String("log-format"))
}

// Opens and migrates the database named by the global flags.
func openStore(cctx *cli.Context, logger *slog.Logger) (*store.GormStore, error) {
	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cliutil.DatabaseOptions{
		MaxConnections: cctx.Int("max-db-connections"),
		EnableTracing:  cctx.Bool("enable-db-tracing"),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.MigrateDatabase(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return store.NewGormStore(db, logger), nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "telegram-token",
			Usage:   "bot API token; when empty the bot runs in dry mode",
			EnvVars: []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "telegram-api-endpoint",
			Usage:   "bot API URL template, for self-hosted API servers",
			EnvVars: []string{"TELEGRAM_API_ENDPOINT"},
		},
		&cli.IntFlag{
			Name:    "poll-timeout",
			Usage:   "long-poll timeout for receiving updates, in seconds",
			Value:   30,
			EnvVars: []string{"TGMOD_POLL_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "maximum number of updates processed concurrently",
			Value:   16,
			EnvVars: []string{"TGMOD_PARALLELISM"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for counters, caching, flags and update offset",
			EnvVars: []string{"TGMOD_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "policy-cache-ttl",
			Usage:   "how long group policies and the filter list are cached",
			Value:   5 * time.Minute,
			EnvVars: []string{"TGMOD_POLICY_CACHE_TTL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack incoming webhook for admin notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"TGMOD_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "seed-filters",
			Usage:   "populate the default filter list if it is empty",
			EnvVars: []string{"TGMOD_SEED_FILTERS"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL("tgmod")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		st, err := openStore(cctx, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := NewServer(ctx, st, Config{
			TelegramToken:    cctx.String("telegram-token"),
			TelegramEndpoint: cctx.String("telegram-api-endpoint"),
			PollTimeout:      cctx.Int("poll-timeout"),
			Parallelism:      cctx.Int("parallelism"),
			RedisURL:         cctx.String("redis-url"),
			PolicyCacheTTL:   cctx.Duration("policy-cache-ttl"),
			SlackWebhookURL:  cctx.String("slack-webhook-url"),
			SeedFilters:      cctx.Bool("seed-filters"),
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		if err := srv.Run(ctx, cctx.String("metrics-listen")); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}
