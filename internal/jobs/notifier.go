package jobs

import (
	"context"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

// EventType は通知の種別です。
type EventType string

const (
	EventStarted   EventType = "job.started"
	EventCompleted EventType = "job.completed"
	EventFailed    EventType = "job.failed"
)

// Event はユーザー向け通知です。
type Event struct {
	Type    EventType `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Job     Record    `json:"job"`
	At      time.Time `json:"at"`
}

// Notifier は通知の送り先です。送信は投げっぱなしで、応答は期待しません。
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// NotifierFunc は関数を Notifier として扱います。
type NotifierFunc func(ctx context.Context, evt Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, evt Event) { f(ctx, evt) }

// MultiNotifier は複数の送り先へ順に通知します。
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, evt Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, evt)
		}
	}
}

// LogNotifier は通知をログに出力します。
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, evt Event) {
	log := logger.WithJobID(evt.Job.JobID)
	e := log.Info()
	if evt.Type == EventFailed {
		e = log.Warn()
	}
	e.Str("event", string(evt.Type)).
		Str("kind", string(evt.Job.Kind)).
		Str("context_id", string(evt.Job.Context)).
		Str("title", evt.Title).
		Msg(evt.Message)
}

func kindLabel(kind Kind) string {
	switch kind {
	case KindImage:
		return "Instagram post"
	case KindVideo:
		return "Instagram story"
	case KindFlyer:
		return "Listing flyer"
	default:
		return string(kind)
	}
}

func startedEvent(record Record, at time.Time) Event {
	return Event{
		Type:    EventStarted,
		Title:   "Generating",
		Message: kindLabel(record.Kind) + " generation started.",
		Job:     record,
		At:      at,
	}
}

func completedEvent(record Record, at time.Time) Event {
	return Event{
		Type:    EventCompleted,
		Title:   "Ready!",
		Message: kindLabel(record.Kind) + " is ready to download.",
		Job:     record,
		At:      at,
	}
}

func failedEvent(record Record, message string, at time.Time) Event {
	return Event{
		Type:    EventFailed,
		Title:   "Error",
		Message: kindLabel(record.Kind) + " could not be generated: " + message,
		Job:     record,
		At:      at,
	}
}
