// Package config centralises all environment / flag configuration for the API.
// It should be imported only by `cmd/server` (and test code). Business‑logic
// layers receive an already‑built Config instance via dependency‑injection.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime option the server needs.
// Keep it flat and simple—prefer primitive types over embedding structs.
type Config struct {
	// Network
	Port string

	// Data stores
	MongoURI string
	DBName   string

	// Auth
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Google Cloud (chat model + deployed crop classifier)
	ProjectID            string
	Location             string
	ChatModel            string
	ClassifierEndpointID string

	// OpenWeatherMap
	OpenWeatherKey     string
	OpenWeatherBaseURL string

	// Object storage (S3 compatible)
	StorageEndpoint  string
	StorageRegion    string
	StorageBucket    string
	StorageAccessKey string
	StorageSecretKey string
	StoragePathStyle bool

	// Messaging
	NATSURL string

	// Background jobs
	RefreshInterval time.Duration

	// Server tuning
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int

	// Runtime
	Env     string
	LogFile string
}

// Load parses the environment (and an optional .env file) into Config.
// It panics on missing critical variables so mis‑configurations fail fast.
func Load() Config {
	// godotenv.Load() is a no‑op if .env doesn't exist—safe in production.
	_ = godotenv.Load()

	return Config{
		Port:                 getEnv("PORT", "8080"),
		MongoURI:             must("MONGODB_URI"),
		DBName:               getEnv("MONGODB_DB", "agriai"),
		JWTSecret:            must("JWT_SECRET"),
		AccessTTL:            getDuration("JWT_ACCESS_TTL_SEC", 86400),
		RefreshTTL:           getDuration("JWT_REFRESH_TTL_SEC", 2592000),
		ProjectID:            must("GCP_PROJECT_ID"),
		Location:             getEnv("GCP_LOCATION", "us-central1"),
		ChatModel:            getEnv("CHAT_MODEL", "gemini-2.0-flash-lite-001"),
		ClassifierEndpointID: must("CLASSIFIER_ENDPOINT_ID"),
		OpenWeatherKey:       must("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL:   getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
		StorageEndpoint:      getEnv("STORAGE_ENDPOINT", "http://localhost:9000"),
		StorageRegion:        getEnv("STORAGE_REGION", "us-east-1"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "agriai-uploads"),
		StorageAccessKey:     must("STORAGE_ACCESS_KEY"),
		StorageSecretKey:     must("STORAGE_SECRET_KEY"),
		StoragePathStyle:     getBool("STORAGE_PATH_STYLE", true),
		NATSURL:              getEnv("NATS_URL", "nats://localhost:4222"),
		RefreshInterval:      getDuration("WEATHER_REFRESH_SEC", 900),
		ReadTimeout:          getDuration("READ_TIMEOUT_SEC", 5),
		WriteTimeout:         getDuration("WRITE_TIMEOUT_SEC", 30),
		BodyLimit:            getInt("BODY_LIMIT_MB", 10) << 20,
		Env:                  getEnv("APP_ENV", "development"),
		LogFile:              getEnv("LOG_FILE", ""),
	}
}

// must fetches a required env var or terminates the program.
func must(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("env var %s is required", key)
	}
	return val
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt reads an integer from env, falling back to defaultVal.
func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

// getBool reads a boolean from env, falling back to defaultVal.
func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid %s=%q; using default %t", key, v, defaultVal)
	}
	return defaultVal
}

// getDuration reads an integer (seconds) from env, falling back to defaultSec.
func getDuration(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Printf("invalid %s=%q; using default %ds", key, v, defaultSec)
	}
	return time.Duration(defaultSec) * time.Second
}
