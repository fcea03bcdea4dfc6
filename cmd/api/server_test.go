package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/config"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
)

func TestDispatchTimeoutsOutlastRendererTimeouts(t *testing.T) {
	cfg := &config.Config{
		ImageRenderTimeout: 60 * time.Second,
		VideoRenderTimeout: 120 * time.Second,
	}

	got := dispatchTimeouts(cfg)
	assert.Equal(t, 70*time.Second, got[jobs.KindImage])
	assert.Equal(t, 130*time.Second, got[jobs.KindVideo])
	assert.Equal(t, 70*time.Second, got[jobs.KindFlyer])
	for kind, d := range got {
		renderer := cfg.ImageRenderTimeout
		if kind == jobs.KindVideo {
			renderer = cfg.VideoRenderTimeout
		}
		assert.Greater(t, d, renderer, kind)
	}
}
