package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"triage-chatbot/internal/auth"
	"triage-chatbot/internal/config"
	"triage-chatbot/internal/core"
	"triage-chatbot/internal/db"
	"triage-chatbot/internal/events"
	httpserver "triage-chatbot/internal/http"
	"triage-chatbot/internal/intake"
	"triage-chatbot/internal/llm"
	"triage-chatbot/internal/logging"
	"triage-chatbot/internal/realtime"
	"triage-chatbot/pkg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(false)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.IsDev())
	if err := cfg.RequireServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("connected to database")

	repo := db.NewRepository(conn)
	if cfg.OpenAIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY is not set; model calls will fail")
	}
	llmClient := llm.NewOpenAIClient(llm.Options{
		APIKey:       cfg.OpenAIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		ChatModel:    cfg.ChatModel,
		SummaryModel: cfg.SummaryModel,
		Timeout:      cfg.LLMTimeout,
	})
	engine := core.NewEngine(core.DefaultScript, core.NewChatService(llmClient, logger), cfg.FollowUpLimit)
	summarizer := core.NewSummarizer(llmClient, logger)

	hub := realtime.NewHub(logger)
	publisher, closePublishers := buildPublishers(ctx, cfg, conn, hub, logger)
	defer closePublishers()

	intakeSvc := intake.NewService(repo, engine, summarizer, hub, publisher, logger)
	accounts := auth.NewService(auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), repo)
	gateway := realtime.NewGateway(hub, intakeSvc, accounts, cfg.CORSOrigins, logger)
	srv := httpserver.NewServer(intakeSvc, repo, accounts, gateway, logger)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpSrv.Addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

// buildPublishers picks how patient-ready events reach clinicians.  With a
// notify channel every instance relays the Postgres notification to its own
// hub; without one the local hub is told directly.  Kafka is an extra sink.
func buildPublishers(ctx context.Context, cfg *config.Config, conn *sql.DB, hub *realtime.Hub, logger zerolog.Logger) (events.Publisher, func()) {
	var pubs events.Multi
	closers := []func(){}

	if cfg.NotifyChannel != "" {
		notifier := db.NewNotifier(conn, cfg.DatabaseURL, cfg.NotifyChannel, logger)
		pubs = append(pubs, notifier)
		go func() {
			err := notifier.Listen(ctx, func(ev pkg.PatientReady) {
				if err := hub.PatientReady(ctx, ev); err != nil {
					logger.Warn().Err(err).Msg("relay patient notification")
				}
			})
			if err != nil {
				logger.Error().Err(err).Msg("notification listener stopped")
			}
		}()
	} else {
		pubs = append(pubs, hub)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		pubs = append(pubs, kp)
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				logger.Warn().Err(err).Msg("close kafka writer")
			}
		})
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing patient events to kafka")
	}

	return pubs, func() {
		for _, c := range closers {
			c()
		}
	}
}
