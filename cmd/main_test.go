package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsIncompleteStoreConfig(t *testing.T) {
	tests := map[string]struct {
		store string
		want  string
	}{
		"unknown":  {store: "s3", want: `unknown MODEL_STORE "s3"`},
		"postgres": {store: "postgres", want: "MODEL_STORE=postgres requires POSTGRES_URL"},
		"gcs":      {store: "gcs", want: "MODEL_STORE=gcs requires GCS_BUCKET"},
		"http":     {store: "http", want: "MODEL_STORE=http requires ML_SERVICE_URL"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"POSTGRES_URL", "GCS_BUCKET", "ML_SERVICE_URL"} {
				t.Setenv(key, "")
			}
			t.Setenv("MODEL_STORE", tc.store)
			err := run(context.Background(), config())
			assert.EqualError(t, err, tc.want)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("MODEL_MODE", "neural")
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("MODEL_STORE", "")
	t.Setenv("HTTP_ADDR", "")

	cfg := config()
	assert.Equal(t, "auto", cfg.ModelMode)
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, "file", cfg.ModelStore)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, slog.LevelDebug, logLevel())

	t.Setenv("LOG_LEVEL", "loud")
	assert.Equal(t, slog.LevelInfo, logLevel())
}
