package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/clinic-voice-agent/cmd/mainconfig"
	"github.com/wolfman30/clinic-voice-agent/internal/api/router"
	"github.com/wolfman30/clinic-voice-agent/internal/booking"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/http/handlers"
	"github.com/wolfman30/clinic-voice-agent/internal/intent"
	"github.com/wolfman30/clinic-voice-agent/internal/llm"
	"github.com/wolfman30/clinic-voice-agent/internal/notify"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/internal/scheduling"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/internal/transcript"
	"github.com/wolfman30/clinic-voice-agent/internal/turn"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func main() {
	// Load .env for local development; ignore when absent.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-voice-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Session store
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	store := session.NewRedisStore(rdb, cfg.SessionTTL)

	// Transcript audit trail (optional)
	var recorder turn.Recorder
	if cfg.TranscriptsOn && cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open transcript database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recorder = transcript.NewStore(db)
	} else {
		logger.Info("transcript recording disabled")
	}

	// Intent classification via Bedrock; the classifier falls back to the
	// keyword ruleset whenever the model misbehaves.
	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	bedrock := llm.NewBedrockClient(mainconfig.NewBedrockRuntime(awsCfg, cfg))
	var client llm.Client = bedrock
	if cfg.BedrockFallbackID != "" {
		client = llm.NewFallbackClient(bedrock,
			llm.ModelOverride{Client: bedrock, Model: cfg.BedrockFallbackID}, logger)
	}
	client = llm.TimeoutClient{Client: client, Timeout: cfg.LLMTimeout}
	classifier := intent.NewClassifier(client, cfg.BedrockModelID, logger)

	// Scheduling backend
	backend := scheduling.NewClient(cfg.SchedulingBaseURL, cfg.SchedulingAPIKey,
		cfg.SchedulingTimeout, logger)

	// SMS confirmations and intake form links
	sender := notify.NewTelnyxSender(cfg.SMSProviderBaseURL, cfg.SMSAPIKey,
		cfg.SMSFromNumber, cfg.NotifyTimeout)
	formBase := cfg.FormBaseURL
	if formBase == "" && cfg.PublicBaseURL != "" {
		formBase = cfg.PublicBaseURL + "/intake"
	}
	notifier := notify.NewService(sender, formBase, logger)

	turnMetrics := metrics.NewTurnMetrics(nil)

	orchestrator := turn.NewOrchestrator(turn.Deps{
		Store:       store,
		Backend:     backend,
		Classifier:  classifier,
		Coordinator: booking.NewCoordinator(backend, cfg.BookingLockTTL, logger),
		Notifier:    notifier,
		Recorder:    recorder,
		Metrics:     turnMetrics,
		Logger:      logger,
	}, turn.Options{
		GraceWindow:   cfg.EmptyGraceWindow,
		MaxAsks:       cfg.MaxQuestionAsks,
		HistoryWindow: cfg.HistoryWindow,
	})

	voiceTurn := handlers.NewVoiceTurnHandler(handlers.VoiceTurnHandlerConfig{
		Processor:     orchestrator,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger,
	})

	r := router.New(&router.Config{
		Logger:           logger,
		VoiceTurn:        voiceTurn,
		MetricsHandler:   promhttp.Handler(),
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookBurst:     cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
