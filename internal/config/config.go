package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port        int    `json:"port"`
	Environment string `json:"environment"`

	// MongoDB configuration
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	// Redis configuration
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Blob store configuration
	MinioEndpoint  string `json:"minio_endpoint"`
	MinioAccessKey string `json:"minio_access_key"`
	MinioSecretKey string `json:"minio_secret_key"`
	MinioBucket    string `json:"minio_bucket"`
	MinioUseSSL    bool   `json:"minio_use_ssl"`

	// Collection names
	DocumentCollection   string `json:"mongo_document_collection"`
	AnnotationCollection string `json:"mongo_annotation_collection"`
	EntityCollection     string `json:"mongo_entity_collection"`

	// Job queue configuration
	WorkerCount        int           `json:"worker_count"`
	WorkerPollInterval time.Duration `json:"worker_poll_interval"`
	JobMaxAttempts     int           `json:"job_max_attempts"`
	JobBackoffBase     time.Duration `json:"job_backoff_base"`
	CompletedRetention time.Duration `json:"completed_retention"`
	FailedRetention    time.Duration `json:"failed_retention"`

	// Processing log configuration
	JobLogRetention time.Duration `json:"job_log_retention"`

	// Session configuration
	SessionTTL time.Duration `json:"session_ttl"`

	// Realtime gateway configuration
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// Extraction configuration
	ImageBasedTextThreshold int `json:"image_based_text_threshold"`

	// Tracing configuration
	TracingEnabled  bool   `json:"tracing_enabled"`
	TracingEndpoint string `json:"tracing_endpoint"`
}

var (
	AppConfig *Config
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	workerCount, err := strconv.Atoi(getEnvOrDefault("WORKER_COUNT", "3"))
	if err != nil {
		return fmt.Errorf("invalid WORKER_COUNT: %w", err)
	}

	maxAttempts, err := strconv.Atoi(getEnvOrDefault("JOB_MAX_ATTEMPTS", "3"))
	if err != nil {
		return fmt.Errorf("invalid JOB_MAX_ATTEMPTS: %w", err)
	}

	textThreshold, err := strconv.Atoi(getEnvOrDefault("IMAGE_BASED_TEXT_THRESHOLD", "100"))
	if err != nil {
		return fmt.Errorf("invalid IMAGE_BASED_TEXT_THRESHOLD: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnvOrDefault("WORKER_POLL_INTERVAL", "500ms"))
	if err != nil {
		return fmt.Errorf("invalid WORKER_POLL_INTERVAL: %w", err)
	}

	backoffBase, err := time.ParseDuration(getEnvOrDefault("JOB_BACKOFF_BASE", "2s"))
	if err != nil {
		return fmt.Errorf("invalid JOB_BACKOFF_BASE: %w", err)
	}

	completedRetention, err := time.ParseDuration(getEnvOrDefault("COMPLETED_JOB_RETENTION", "168h"))
	if err != nil {
		return fmt.Errorf("invalid COMPLETED_JOB_RETENTION: %w", err)
	}

	failedRetention, err := time.ParseDuration(getEnvOrDefault("FAILED_JOB_RETENTION", "720h"))
	if err != nil {
		return fmt.Errorf("invalid FAILED_JOB_RETENTION: %w", err)
	}

	jobLogRetention, err := time.ParseDuration(getEnvOrDefault("JOB_LOG_RETENTION", "168h"))
	if err != nil {
		return fmt.Errorf("invalid JOB_LOG_RETENTION: %w", err)
	}

	sessionTTL, err := time.ParseDuration(getEnvOrDefault("SESSION_TTL", "24h"))
	if err != nil {
		return fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	heartbeatInterval, err := time.ParseDuration(getEnvOrDefault("HEARTBEAT_INTERVAL", "30s"))
	if err != nil {
		return fmt.Errorf("invalid HEARTBEAT_INTERVAL: %w", err)
	}

	AppConfig = &Config{
		// Server configuration
		Port:        port,
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		// MongoDB configuration
		MongoURI:      getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGODB_DATABASE", "library"),

		// Redis configuration
		RedisURI:      getEnvOrDefault("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Blob store configuration
		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "documents"),
		MinioUseSSL:    getEnvOrDefault("MINIO_USE_SSL", "false") == "true",

		// Collection names
		DocumentCollection:   getEnvOrDefault("MONGODB_DOCUMENT_COLLECTION", "documents"),
		AnnotationCollection: getEnvOrDefault("MONGODB_ANNOTATION_COLLECTION", "annotations"),
		EntityCollection:     getEnvOrDefault("MONGODB_ENTITY_COLLECTION", "entities"),

		// Job queue configuration
		WorkerCount:        workerCount,
		WorkerPollInterval: pollInterval,
		JobMaxAttempts:     maxAttempts,
		JobBackoffBase:     backoffBase,
		CompletedRetention: completedRetention,
		FailedRetention:    failedRetention,

		// Processing log configuration
		JobLogRetention: jobLogRetention,

		// Session configuration
		SessionTTL: sessionTTL,

		// Realtime gateway configuration
		HeartbeatInterval: heartbeatInterval,

		// Extraction configuration
		ImageBasedTextThreshold: textThreshold,

		// Tracing configuration
		TracingEnabled:  getEnvOrDefault("TRACING_ENABLED", "false") == "true",
		TracingEndpoint: getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
