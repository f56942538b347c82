package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Router providers accepted in ROUTER_PROVIDER.
const (
	RouterMapbox = "mapbox"
	RouterGoogle = "google"
	RouterNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT, parsed by the shared config package

	// Generation backend. An empty LLM_API_KEY selects the fixture generator.
	LLMAPIKey      string  `env:"LLM_API_KEY"`
	LLMBaseURL     string  `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMModel       string  `env:"LLM_MODEL" envDefault:"mixtral-8x7b-32768"`
	LLMTemperature float32 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"1000"`
	FixtureDir     string  `env:"FIXTURE_DIR" envDefault:"data/fixtures"`
	// Speech-to-text model for voice questions, served by the same endpoint.
	TranscriptionModel string `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-large-v3"`

	// Synthesis.
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"30s"`
	GenerationRetries int           `env:"GENERATION_RETRIES" envDefault:"1"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"10"`
	MinAcceptFraction float64       `env:"MIN_ACCEPT_FRACTION" envDefault:"0"`
	DecayFactor       float64       `env:"DECAY_FACTOR" envDefault:"0.8"`
	OccupancyDeltaMin int           `env:"OCCUPANCY_DELTA_MIN" envDefault:"50"`
	OccupancyDeltaMax int           `env:"OCCUPANCY_DELTA_MAX" envDefault:"200"`

	// Resolver. An empty ROUTER_PROVIDER picks mapbox or google by which
	// credential is set, and none otherwise.
	RouterProvider  string        `env:"ROUTER_PROVIDER"`
	RoutingTimeout  time.Duration `env:"ROUTING_TIMEOUT" envDefault:"5s"`
	DefaultLat      float64       `env:"DEFAULT_LAT" envDefault:"25.2854"`
	DefaultLon      float64       `env:"DEFAULT_LON" envDefault:"51.5310"`
	GeocodeRegion   string        `env:"GEOCODE_REGION" envDefault:"Qatar"`
	GoogleMapsKey   string        `env:"GOOGLE_MAPS_API_KEY"`
	MapboxToken     string        `env:"MAPBOX_TOKEN"`
	MapboxEnabled   bool          // MAPBOX_ENABLED, defaults to whether MAPBOX_TOKEN is set
	MapboxTimeout   time.Duration `env:"MAPBOX_TIMEOUT" envDefault:"5s"`
	MapboxCacheSize int           `env:"MAPBOX_CACHE_SIZE" envDefault:"1000"`

	// Snapshot publishing.
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       []string      // KAFKA_BROKERS, comma separated
	KafkaSnapshotTopic string        `env:"KAFKA_SNAPSHOT_TOPIC" envDefault:"crisis-sim-snapshots"`
	PublishTimeout     time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`

	OTelEndpoint string  `env:"OTEL_ENDPOINT"`
	RateLimitRPS float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"4"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeout = shutdownTimeout
	cfg.KafkaBrokers = sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"))

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	switch v := sharedcfg.EnvOrDefault("MAPBOX_ENABLED", ""); v {
	case "":
	case "true":
		cfg.MapboxEnabled = true
	default:
		cfg.MapboxEnabled = false
	}

	cfg.RouterProvider = strings.ToLower(strings.TrimSpace(cfg.RouterProvider))
	if cfg.RouterProvider == "" {
		switch {
		case cfg.MapboxEnabled:
			cfg.RouterProvider = RouterMapbox
		case cfg.GoogleMapsKey != "":
			cfg.RouterProvider = RouterGoogle
		default:
			cfg.RouterProvider = RouterNone
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.BatchSize < 1 || c.BatchSize > 100:
		return errors.New("BATCH_SIZE must be between 1 and 100")
	case c.GenerationTimeout <= 0:
		return errors.New("GENERATION_TIMEOUT must be positive")
	case c.GenerationRetries < 0:
		return errors.New("GENERATION_RETRIES must not be negative")
	case c.MinAcceptFraction < 0 || c.MinAcceptFraction > 1:
		return errors.New("MIN_ACCEPT_FRACTION must be between 0 and 1")
	case c.DecayFactor < 0 || c.DecayFactor > 1:
		return errors.New("DECAY_FACTOR must be between 0 and 1")
	case c.OccupancyDeltaMin < 0 || c.OccupancyDeltaMax < c.OccupancyDeltaMin:
		return errors.New("OCCUPANCY_DELTA_MIN and OCCUPANCY_DELTA_MAX must satisfy 0 <= min <= max")
	case c.LLMTemperature < 0 || c.LLMTemperature > 2:
		return errors.New("LLM_TEMPERATURE must be between 0 and 2")
	case c.LLMMaxTokens <= 0:
		return errors.New("LLM_MAX_TOKENS must be positive")
	case c.PublishTimeout <= 0:
		return errors.New("PUBLISH_TIMEOUT must be positive")
	case c.RoutingTimeout <= 0:
		return errors.New("ROUTING_TIMEOUT must be positive")
	case c.MapboxTimeout <= 0:
		return errors.New("invalid MAPBOX_TIMEOUT")
	case c.MapboxCacheSize <= 0:
		return errors.New("MAPBOX_CACHE_SIZE must be positive")
	case c.DefaultLat < -90 || c.DefaultLat > 90 || c.DefaultLon < -180 || c.DefaultLon > 180:
		return errors.New("DEFAULT_LAT/DEFAULT_LON out of range")
	case c.RateLimitRPS <= 0 || c.RateBurst <= 0:
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	switch c.RouterProvider {
	case RouterMapbox:
		if !c.MapboxEnabled {
			return errors.New("ROUTER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	case RouterGoogle:
		if c.GoogleMapsKey == "" {
			return errors.New("ROUTER_PROVIDER is google but GOOGLE_MAPS_API_KEY is not set")
		}
	case RouterNone:
	default:
		return fmt.Errorf("ROUTER_PROVIDER %q is not one of mapbox, google, none", c.RouterProvider)
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSnapshotTopic == "" {
			return errors.New("KAFKA_SNAPSHOT_TOPIC is required")
		}
	}
	return nil
}
