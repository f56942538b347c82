package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/crisis-sim/internal/adapter/fixture"
	"github.com/couchcryptid/crisis-sim/internal/adapter/googlemaps"
	httpadapter "github.com/couchcryptid/crisis-sim/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crisis-sim/internal/adapter/kafka"
	"github.com/couchcryptid/crisis-sim/internal/adapter/mapbox"
	"github.com/couchcryptid/crisis-sim/internal/adapter/openai"
	"github.com/couchcryptid/crisis-sim/internal/assistant"
	"github.com/couchcryptid/crisis-sim/internal/config"
	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
	"github.com/couchcryptid/crisis-sim/internal/resolver"
	"github.com/couchcryptid/crisis-sim/internal/state"
	"github.com/couchcryptid/crisis-sim/internal/synthesis"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	store := state.New(nil)
	gen, transcriber := newGenerator(cfg, logger)

	// Mapbox geocoding (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var (
		geocoder domain.Geocoder
		mbClient *mapbox.Client
	)
	if cfg.MapboxEnabled {
		mbClient = mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(mbClient, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var gmClient *googlemaps.Client
	if cfg.GoogleMapsKey != "" {
		gmClient, err = googlemaps.NewClient(cfg.GoogleMapsKey, "", cfg.RoutingTimeout, metrics, logger)
		if err != nil {
			logger.Error("failed to create google maps client", "error", err)
			os.Exit(1)
		}
	}

	var (
		router   domain.Router
		provider string
	)
	switch cfg.RouterProvider {
	case config.RouterMapbox:
		router, provider = mbClient, mapbox.ProviderName
	case config.RouterGoogle:
		router, provider = gmClient, googlemaps.ProviderName
	}
	logger.Info("routing configured", "provider", cfg.RouterProvider)

	var locator domain.Locator
	if gmClient != nil {
		locator = gmClient
	}

	var (
		publisher synthesis.Publisher
		kafkaPub  *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, logger)
		publisher = kafkaPub
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSnapshotTopic)
	}

	orch := synthesis.New(gen, store, geocoder, publisher, logger, metrics, synthesis.Options{
		BatchSize: cfg.BatchSize,
		Retries:   cfg.GenerationRetries,
		Timeout:   cfg.GenerationTimeout,
		Policy:    domain.AcceptancePolicy{MinFraction: cfg.MinAcceptFraction},
		Decay: &synthesis.DecayPolicy{
			Factor:       cfg.DecayFactor,
			OccupancyMin: cfg.OccupancyDeltaMin,
			OccupancyMax: cfg.OccupancyDeltaMax,
		},
		PublishTimeout: cfg.PublishTimeout,
		Region:         cfg.GeocodeRegion,
	})

	res := resolver.New(store, router, locator, geocoder, resolver.Options{
		Default:  domain.Coordinate{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
		Timeout:  cfg.RoutingTimeout,
		Provider: provider,
	}, logger, metrics)

	asst := assistant.New(gen, store, cfg.GenerationTimeout, logger, metrics)

	gin.SetMode(gin.ReleaseMode)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Synthesizer: orch,
		State:       store,
		Resolver:    res,
		Assistant:   asst,
		Transcriber: transcriber,
	}, httpadapter.Options{
		RateLimit:        cfg.RateLimitRPS,
		RateBurst:        cfg.RateBurst,
		SynthesisTimeout: synthesisBudget(cfg),
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// synthesisBudget bounds one POST /api/scenario: every attempt of the slowest
// dataset plus the capped backoff between attempts.
func synthesisBudget(cfg *config.Config) time.Duration {
	attempts := time.Duration(cfg.GenerationRetries + 1)
	return attempts*cfg.GenerationTimeout + attempts*5*time.Second
}

// newGenerator picks the model backend: an OpenAI-compatible API when
// LLM_API_KEY is set, the fixture generator otherwise. Voice questions need
// the API, so the transcriber is nil in fixture mode.
func newGenerator(cfg *config.Config, logger *slog.Logger) (domain.Generator, domain.Transcriber) {
	if cfg.LLMAPIKey == "" {
		logger.Info("no LLM_API_KEY set, using fixture generator", "dir", cfg.FixtureDir)
		return fixture.NewGenerator(cfg.FixtureDir, nil), nil
	}
	logger.Info("using chat completions generator", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel,
		"transcription_model", cfg.TranscriptionModel)
	client := openai.NewClient(openai.Config{
		APIKey:             cfg.LLMAPIKey,
		BaseURL:            cfg.LLMBaseURL,
		Model:              cfg.LLMModel,
		Temperature:        cfg.LLMTemperature,
		MaxTokens:          cfg.LLMMaxTokens,
		Timeout:            cfg.GenerationTimeout,
		TranscriptionModel: cfg.TranscriptionModel,
	}, logger)
	return client, client
}
