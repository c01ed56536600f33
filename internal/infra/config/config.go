package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment
// variables.
type Config struct {
	Env               string
	HTTPAddr          string
	InstanceID        string
	StorageMode       string
	MongoURI          string
	MongoDB           string
	KafkaBrokers      []string
	KafkaGroupID      string
	SessionTTL        time.Duration
	ChangeFeedBackoff time.Duration
	ListingFixtures   string
}

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		InstanceID:      getEnv("INSTANCE_ID", ""),
		StorageMode:     strings.ToLower(getEnv("STORAGE_MODE", StorageMemory)),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getEnv("MONGO_DB", "campusmarket"),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "campusmarket-chat"),
		ListingFixtures: getEnv("LISTING_FIXTURES", ""),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		for _, raw := range strings.Split(brokers, ",") {
			if b := strings.TrimSpace(raw); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	sessionTTL, err := parseDurationEnv("SESSION_TTL", 168*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = sessionTTL

	backoff, err := parseDurationEnv("CHANGEFEED_BACKOFF", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ChangeFeedBackoff = backoff

	switch cfg.StorageMode {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE_MODE=%s", StorageMongo)
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_MODE: %q", cfg.StorageMode)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
