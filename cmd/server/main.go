package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/api"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/config"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/database"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/mq"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/relay"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/server"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/stats"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "booking-status:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var (
		configPath     string
		addr           string
		dsn            string
		storeDriver    string
		signingKey     string
		allowedOrigins []string
		redisAddr      string
		amqpURL        string
		logLevel       string
		pretty         bool
	)

	flagSet := pflag.NewFlagSet("booking-status", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&addr, "addr", "", "server address")
	flagSet.StringVar(&dsn, "dsn", "", "database connection string")
	flagSet.StringVar(&storeDriver, "store", "", "booking store: postgres or memory")
	flagSet.StringVar(&signingKey, "signing-key", "", "base64 encoded token signing key")
	flagSet.StringSliceVar(&allowedOrigins, "allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	flagSet.StringVar(&redisAddr, "redis-addr", "", "redis address for cross-instance fan-out")
	flagSet.StringVar(&amqpURL, "amqp-url", "", "rabbitmq url for status event export")
	flagSet.StringVar(&logLevel, "log-level", "", "log level")
	flagSet.BoolVar(&pretty, "pretty", false, "human readable logs")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flagSet.Changed("dsn") {
		cfg.Store.DSN = dsn
	}
	if flagSet.Changed("store") {
		cfg.Store.Driver = storeDriver
	}
	if flagSet.Changed("signing-key") {
		cfg.Server.SigningSecret = signingKey
	}
	if flagSet.Changed("allowed-origins") {
		cfg.Server.AllowedOrigins = allowedOrigins
	}
	if flagSet.Changed("redis-addr") {
		cfg.Redis.Addr = redisAddr
	}
	if flagSet.Changed("amqp-url") {
		cfg.AMQP.URL = amqpURL
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("pretty") {
		cfg.Log.Pretty = pretty
	}
	if err := cfg.Resolve(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	hub := server.NewServer(logger, server.NewRegistry(), statsUpdater, serverOptions(cfg))

	var publishers []server.EventPublisher

	var statusRelay *relay.Relay
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		statusRelay = relay.New(logger, rdb, cfg.Redis.Channel)
		publishers = append(publishers, statusRelay)
	}

	if cfg.AMQP.URL != "" {
		publisher, err := mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		publishers = append(publishers, publisher)
		logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("exporting status events")
	}

	broadcaster := server.NewBroadcaster(logger, hub, repo, statsUpdater, cfg.Server.BroadcastAll, publishers...)
	hub.UseCommandHandler(broadcaster)

	calc := deadline.NewCalculator(cfg.Location, cfg.Booking.GraceMinutes)
	app := api.NewBookingApp(mux, logger, hub, broadcaster, repo, calc, cfg)

	go hub.Run()

	if statusRelay != nil {
		app.AddReadinessCheck("redis", statusRelay.Ping)
		go func() {
			if err := statusRelay.Run(ctx, func(ev types.StatusUpdateEvent) { broadcaster.Fanout(ev) }); err != nil {
				logger.Error().Err(err).Msg("status relay stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down status hub...")
	if err := hub.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status hub shutdown: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		SendQueueSize: cfg.Server.SendQueueSize,
		CommandRate:   rate.Limit(cfg.Server.CommandRate),
		CommandBurst:  cfg.Server.CommandBurst,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(cfg.LogLevel).With().Timestamp().Str("service", "booking-status").Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (database.BookingRepository, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn().Msg("using in-memory booking store")
		return database.NewMemoryBookingRepository(), func() {}, nil
	}

	repo, err := database.NewPgBookingRepository(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}

	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}, nil
}
