package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := Load()

	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, ":memory:", cfg.DatabasePath)
	require.Equal(t, 0.5, cfg.DefaultConfidence)
	require.Equal(t, time.Hour, cfg.JobRetention)
	require.Equal(t, int64(1024)<<20, cfg.MaxUploadBytes())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("PROCESSING_WORKERS", "4")
	t.Setenv("JOB_RETENTION", "30m")
	t.Setenv("DEFAULT_CONFIDENCE", "0.35")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("QUEUE_SIZE", "not a number")

	cfg := Load()
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 4, cfg.ProcessingWorkers)
	require.Equal(t, 30*time.Minute, cfg.JobRetention)
	require.Equal(t, 0.35, cfg.DefaultConfidence)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	require.Equal(t, 16, cfg.QueueSize, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"workers", func(c *Config) { c.ProcessingWorkers = 0 }},
		{"queue", func(c *Config) { c.QueueSize = -1 }},
		{"confidence", func(c *Config) { c.DefaultConfidence = 1.5 }},
		{"nms", func(c *Config) { c.NMSThreshold = 0 }},
		{"input size", func(c *Config) { c.InputSize = 600 }},
		{"retention", func(c *Config) { c.JobRetention = 0 }},
		{"flush size", func(c *Config) { c.SeriesFlushSize = 0 }},
		{"zero upload limit", func(c *Config) { c.MaxUploadMB = 0 }},
		{"negative upload limit", func(c *Config) { c.MaxUploadMB = -5 }},
	}
	t.Chdir(t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
