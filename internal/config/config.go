package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Graph backends
const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config is the environment configuration shared by both binaries
type Config struct {
	DataDir string

	FHIRBaseURL  string
	FHIRPageSize int
	FHIRMaxPages int
	FHIRTimeout  time.Duration

	GraphBackend      string
	Neo4jURI          string
	Neo4jUser         string
	Neo4jPassword     string
	Neo4jDatabase     string
	CreateConstraints bool
	ClearOnStart      bool

	CouchbaseURL      string
	CouchbaseUsername string
	CouchbasePassword string
	CouchbaseBucket   string
	LockTTL           time.Duration

	ElasticsearchURL string
	LogLevel         string

	APIPort               string
	MetricsPort           string
	EnableBusinessMetrics bool
	EnableSystemMetrics   bool
	APIIngestWait         time.Duration
}

// CouchbaseEnabled reports whether run status and locking are configured
func (c Config) CouchbaseEnabled() bool {
	return c.CouchbaseURL != ""
}

// LoadDotEnv loads ../.env, then .env; missing files are not an error
func LoadDotEnv() {
	err := godotenv.Load("../.env")
	if err != nil {
		log.Debug().Msg("Not found .env file in parent directory, trying current directory")
		err = godotenv.Load(".env")
		if err != nil {
			log.Debug().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load reads .env files and the environment
func Load() (Config, error) {
	LoadDotEnv()
	return FromEnv()
}

// FromEnv reads the configuration from the environment only
func FromEnv() (Config, error) {
	var errs []string
	boolVar := func(key string, def bool) bool {
		v, err := getBoolOrDefault(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	intVar := func(key string, def int) int {
		v, err := getIntOrDefault(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := getDurationOrDefault(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Config{
		DataDir: getEnvOrDefault("DATA_DIR", "./data"),

		FHIRBaseURL:  os.Getenv("FHIR_BASE_URL"),
		FHIRPageSize: intVar("FHIR_PAGE_SIZE", 100),
		FHIRMaxPages: intVar("FHIR_MAX_PAGES", 5),
		FHIRTimeout:  durationVar("FHIR_TIMEOUT", 30*time.Second),

		GraphBackend:      strings.ToLower(getEnvOrDefault("GRAPH_BACKEND", BackendNeo4j)),
		Neo4jURI:          getEnvOrDefault("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnvOrDefault("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnvOrDefault("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:     getEnvOrDefault("NEO4J_DATABASE", "neo4j"),
		CreateConstraints: boolVar("CREATE_CONSTRAINTS", true),
		ClearOnStart:      boolVar("CLEAR_DATABASE_ON_START", false),

		CouchbaseURL:      os.Getenv("COUCHBASE_URL"),
		CouchbaseUsername: getEnvOrDefault("COUCHBASE_USERNAME", "Administrator"),
		CouchbasePassword: getEnvOrDefault("COUCHBASE_PASSWORD", "password"),
		CouchbaseBucket:   getEnvOrDefault("COUCHBASE_BUCKET", "fhirgraph"),
		LockTTL:           durationVar("INGEST_LOCK_TTL", time.Hour),

		ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),

		APIPort:               getEnvOrDefault("API_PORT", "8000"),
		MetricsPort:           os.Getenv("METRICS_PORT"),
		EnableBusinessMetrics: boolVar("ENABLE_BUSINESS_METRICS", true),
		EnableSystemMetrics:   boolVar("ENABLE_SYSTEM_METRICS", false),
		APIIngestWait:         durationVar("API_INGEST_WAIT", 0),
	}

	switch cfg.GraphBackend {
	case BackendNeo4j, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("GRAPH_BACKEND must be %q or %q, got %q", BackendNeo4j, BackendMemory, cfg.GraphBackend))
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Helper function to get environment variable with default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
