// Package main is the entry point for the discovery API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/matchfeed/internal/api"
	"github.com/onnwee/matchfeed/internal/auth"
	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/chat"
	"github.com/onnwee/matchfeed/internal/config"
	"github.com/onnwee/matchfeed/internal/db"
	"github.com/onnwee/matchfeed/internal/embedding"
	"github.com/onnwee/matchfeed/internal/featureflag"
	"github.com/onnwee/matchfeed/internal/health"
	"github.com/onnwee/matchfeed/internal/jobs"
	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/notify"
	"github.com/onnwee/matchfeed/internal/photo"
	"github.com/onnwee/matchfeed/internal/policy"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/session"
	"github.com/onnwee/matchfeed/internal/swipe"
	"github.com/onnwee/matchfeed/internal/tracing"
)

const (
	serviceName = "matchfeed-api"

	shutdownTimeout          = 10 * time.Second
	sessionCleanupInterval   = time.Minute
	rateLimitCleanupInterval = 5 * time.Minute
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env file is fine; the environment wins over it either way.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Matchfeed Discovery API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logConfig(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func logConfig(logger *slog.Logger, cfg *config.Config) {
	summary := cfg.LogSummary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, summary[k]))
	}
	logger.Info("configuration loaded", attrs...)
}

// run wires the server from cfg and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "error", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	rankingMetrics := matching.NewMetrics()
	swipeMetrics := swipe.NewMetrics()
	policyMetrics := policy.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	chatMetrics := chat.NewMetrics()
	for _, m := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, rankingMetrics, swipeMetrics, policyMetrics, jobMetrics, chatMetrics} {
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	tokens, err := newTokenService(cfg)
	if err != nil {
		return err
	}

	flags := featureflag.NewService(featureflag.ServiceConfig{
		Store:     featureflag.NewPostgresStore(conn),
		Platform:  cfg.Platform,
		Overrides: featureflag.ParseOverrides(cfg.FeatureFlagOverrides),
		Logger:    logger,
	})

	embeddings := embedding.NewPostgresStore(conn)
	var viewerEmbeddings matching.EmbeddingStore = embeddings
	if rdb != nil {
		viewerEmbeddings = embedding.NewCachedStore(embeddings, rdb, cfg.EmbeddingCacheTTL, logger)
	}

	blend, err := cfg.Blend()
	if err != nil {
		logger.Warn("invalid vector blend, using defaults", "error", err)
	}
	ranker := matching.NewVectorRanker(matching.VectorRankerConfig{
		Flags:      flags,
		Embeddings: viewerEmbeddings,
		Search:     embeddings,
		Blend:      blend,
		FlagName:   cfg.VectorFlag,
		Logger:     logger,
		Metrics:    rankingMetrics,
	})

	memLimits := ratelimit.NewMemoryStore(time.Now)
	var limits ratelimit.Store = memLimits
	if rdb != nil {
		limits = ratelimit.NewRedisStore(rdb, time.Now)
		memLimits = nil
	}

	var checker swipe.PolicyChecker
	switch cfg.PolicyBackend {
	case config.PolicyBackendBucket:
		checker = policy.NewBucketChecker(limits, nil, logger, policyMetrics)
	default:
		checker = policy.NewWindowChecker(conn, nil, logger, policyMetrics)
	}

	var notifier swipe.Notifier = notify.NewLogNotifier(logger)
	if rdb != nil {
		notifier = notify.NewRedisNotifier(rdb, logger)
	}

	swipes := swipe.NewPostgresStore(conn, logger)
	engine := swipe.NewEngine(swipe.EngineConfig{
		Policy:   checker,
		Likes:    swipes,
		Matches:  swipes,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  swipeMetrics,
	})

	messenger := chat.NewEngine(chat.EngineConfig{
		Store:    chat.NewPostgresStore(conn, logger),
		Policy:   checker,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  chatMetrics,
	})

	buckets := cfg.Buckets()
	sessions := session.NewManager(session.Deps{
		Source: candidate.NewPostgresSource(conn, candidate.Config{
			DefaultRadiusKm: cfg.DiscoveryRadiusKm,
			MaxResults:      cfg.DiscoveryMaxResults,
		}, logger),
		Swiper:    engine,
		Blocks:    swipes,
		Messenger: messenger,
		Ranker:    ranker,
		Buckets:   buckets,
		Logger:    logger,
	}, cfg.SessionIdleTTL)
	runner := jobs.NewRunner(jobMetrics, logger)
	go runner.Every(ctx, jobs.JobTypeSessionCleanup, sessionCleanupInterval,
		jobs.SessionCleanup(sessions, jobMetrics, logger))
	if memLimits != nil {
		go runner.Every(ctx, jobs.JobTypeRateLimitCleanup, rateLimitCleanupInterval,
			jobs.RateLimitCleanup(memLimits, jobs.DefaultBucketIdle, jobMetrics, logger))
	}

	var photos api.PhotoSigner
	if cfg.PhotosEnabled() {
		signer, err := photo.NewSigner(photo.Config{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			URLExpiry:       cfg.PhotoURLExpiry,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize photo signer: %w", err)
		}
		photos = signer
	}

	checkers := map[string]api.HealthChecker{
		"database": health.NewDBChecker(conn),
	}
	var notifications *api.NotificationHandlers
	if rdb != nil {
		checkers["redis"] = health.NewRedisChecker(rdb)
		notifications = api.NewNotificationHandlers(notify.NewRedisStream(rdb), originChecker(cfg.CORSAllowedOrigins), logger)
	}

	handler := newRouter(routerDeps{
		Discovery:     api.NewDiscoveryHandlers(sessions, photos, logger),
		Messages:      api.NewMessageHandlers(sessions),
		Notifications: notifications,
		Health:        api.NewHealthHandlers(checkers),
		Tokens:        tokens,
		Limits:        limits,
		APIBucket:     buckets[bucketAPI],
		Gatherer:      reg,
		Metrics:       httpMetrics,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, logger)
}

func newTokenService(cfg *config.Config) (*auth.JWTService, error) {
	var opts []auth.Option
	if cfg.JWTPreviousSecret != "" {
		opts = append(opts, auth.WithPreviousSecret(cfg.JWTPreviousSecret))
	}
	tokens, err := auth.NewJWTService(cfg.JWTSecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	return tokens, nil
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
