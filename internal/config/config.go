package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	ModelPath         string  // YOLO .onnx, or a frozen TensorFlow graph when ModelConfigPath is set
	ModelConfigPath   string  // .pbtxt for SSD graphs; empty for ONNX models
	InputSize         int     // Network input edge in pixels
	NMSThreshold      float64 // IoU above which overlapping boxes of one class are merged
	DefaultConfidence float64

	UploadDirectory string
	OutputDirectory string
	DatabasePath    string // Defaults to an in-memory database that lives as long as the process
	LogDirectory    string
	LogLevel        string

	ProcessingWorkers int // Number of concurrent video runs, one detector each
	QueueSize         int // Started jobs that may wait for a free worker
	MaxUploadMB       int64

	JobRetention        time.Duration // How long terminal jobs stay queryable
	JanitorInterval     time.Duration
	SeriesFlushSize     int // Buffered frame counts per job before a database flush
	SeriesFlushInterval time.Duration

	CORSOrigins     []string
	UploadRateLimit int // Uploads per minute per client IP, 0 disables
}

// Load reads the configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 8000),
		ModelPath:         getEnv("MODEL_PATH", filepath.Join(".", "models", "yolo11n.onnx")),
		ModelConfigPath:   getEnv("MODEL_CONFIG_PATH", ""),
		InputSize:         getEnvAsInt("INPUT_SIZE", 640),
		NMSThreshold:      getEnvAsFloat("NMS_THRESHOLD", 0.45),
		DefaultConfidence: getEnvAsFloat("DEFAULT_CONFIDENCE", 0.5),

		UploadDirectory: getEnv("UPLOAD_DIR", filepath.Join(".", "uploads")),
		OutputDirectory: getEnv("OUTPUT_DIR", filepath.Join(".", "outputs")),
		DatabasePath:    getEnv("DB_PATH", ":memory:"),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		ProcessingWorkers: getEnvAsInt("PROCESSING_WORKERS", 2),
		QueueSize:         getEnvAsInt("QUEUE_SIZE", 16),
		MaxUploadMB:       getEnvAsInt64("MAX_UPLOAD_MB", 1024),

		JobRetention:        getEnvAsDuration("JOB_RETENTION", time.Hour),
		JanitorInterval:     getEnvAsDuration("JANITOR_INTERVAL", time.Minute),
		SeriesFlushSize:     getEnvAsInt("SERIES_FLUSH_SIZE", 120),
		SeriesFlushInterval: getEnvAsDuration("SERIES_FLUSH_INTERVAL", 5*time.Second),

		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		UploadRateLimit: getEnvAsInt("UPLOAD_RATE_LIMIT", 30),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT %d out of range", c.Port)
	case c.ProcessingWorkers <= 0:
		return fmt.Errorf("PROCESSING_WORKERS must be positive, got %d", c.ProcessingWorkers)
	case c.QueueSize < 0:
		return fmt.Errorf("QUEUE_SIZE must not be negative, got %d", c.QueueSize)
	case c.DefaultConfidence < 0 || c.DefaultConfidence > 1:
		return fmt.Errorf("DEFAULT_CONFIDENCE %v outside [0,1]", c.DefaultConfidence)
	case c.NMSThreshold <= 0 || c.NMSThreshold > 1:
		return fmt.Errorf("NMS_THRESHOLD %v outside (0,1]", c.NMSThreshold)
	case c.InputSize <= 0 || c.InputSize%32 != 0:
		return fmt.Errorf("INPUT_SIZE must be a positive multiple of 32, got %d", c.InputSize)
	case c.JobRetention <= 0:
		return fmt.Errorf("JOB_RETENTION must be positive, got %s", c.JobRetention)
	case c.SeriesFlushSize <= 0:
		return fmt.Errorf("SERIES_FLUSH_SIZE must be positive, got %d", c.SeriesFlushSize)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
