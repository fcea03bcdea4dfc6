package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GIN_MODE", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RendererURL != "http://127.0.0.1:9090" {
		t.Fatalf("unexpected renderer url: %s", cfg.RendererURL)
	}
	if cfg.JobRetention != 5*time.Minute {
		t.Fatalf("unexpected retention: %s", cfg.JobRetention)
	}
	if cfg.JobSweepInterval != time.Minute {
		t.Fatalf("unexpected sweep interval: %s", cfg.JobSweepInterval)
	}
	if cfg.MaxImages != 6 {
		t.Fatalf("unexpected max images: %d", cfg.MaxImages)
	}
}

func TestLoadDurationFormats(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("JOB_RETENTION", "90s")
	t.Setenv("VIDEO_RENDER_TIMEOUT", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JobRetention != 90*time.Second {
		t.Fatalf("JobRetention = %s, want 90s", cfg.JobRetention)
	}
	if cfg.VideoRenderTimeout != 200*time.Second {
		t.Fatalf("VideoRenderTimeout = %s, want 200s", cfg.VideoRenderTimeout)
	}
}

func TestValidateRejectsUnknownExecutor(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("JOB_EXECUTOR", "threads")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown executor")
	}
}

func TestValidateReleaseRequiresSecret(t *testing.T) {
	cfg := &Config{
		GinMode:          "release",
		JobExecutor:      ExecutorGoroutine,
		CacheBackend:     CacheMemory,
		MaxImages:        6,
		JobRetention:     time.Minute,
		JobSweepInterval: time.Minute,
		RemotionBinary:   "npx",
		QueueConcurrency: 4,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without SESSION_SECRET in release mode")
	}
	cfg.SessionSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: " chrome-extension://abc , https://www.sahibinden.com,,"}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[0] != "chrome-extension://abc" || origins[1] != "https://www.sahibinden.com" {
		t.Fatalf("unexpected origins: %#v", origins)
	}
}
