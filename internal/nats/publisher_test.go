package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
)

func TestNewMessage(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := newMessage(jobs.Event{
		Type:    jobs.EventFailed,
		Message: "Instagram story could not be generated: timeout",
		At:      at,
		Job: jobs.Record{
			JobID:   "job_1",
			Context: "tab-7",
			Kind:    jobs.KindVideo,
			Status:  jobs.StatusFailed,
			Error:   &jobs.ErrorInfo{Code: "RENDER_TIMEOUT", Message: "timeout"},
		},
	})

	assert.Equal(t, "job.failed", msg.Type)
	assert.Equal(t, "tab-7", msg.Context)
	assert.Equal(t, "video", msg.Kind)
	assert.Equal(t, "timeout", msg.Error)
	assert.Empty(t, msg.ResultURL)
	assert.Equal(t, "2025-03-01T10:00:00Z", msg.At)
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "completed", subjectToken(jobs.EventCompleted))
	assert.Equal(t, "started", subjectToken(jobs.EventStarted))
	assert.Equal(t, "custom", subjectToken(jobs.EventType("custom")))
}
