// Package nats はジョブイベントを NATS に配信します。
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

// JobEventsSubject はイベントの配信先サブジェクトの接頭辞です。実際は <prefix>.<eventType> に送ります。
const JobEventsSubject = "listing.jobs"

// JobEventMessage は NATS に送るメッセージです。
type JobEventMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Context   string `json:"context"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	ResultURL string `json:"result_url,omitempty"`
	At        string `json:"at"`
}

// Publisher はジョブイベントを NATS へ送る jobs.Notifier です。
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher は NATS に接続します。
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("listing-media-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, subject: JobEventsSubject}, nil
}

// Notify implements jobs.Notifier. 送信失敗はログに残すだけです。
func (p *Publisher) Notify(_ context.Context, evt jobs.Event) {
	data, err := json.Marshal(newMessage(evt))
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to marshal job event")
		return
	}
	if err := p.conn.Publish(p.subject+"."+subjectToken(evt.Type), data); err != nil {
		logger.WithJobID(evt.Job.JobID).Warn().Err(err).Msg("failed to publish job event")
	}
}

// Close は接続を閉じます。未送信のメッセージは送り切ります。
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func newMessage(evt jobs.Event) JobEventMessage {
	msg := JobEventMessage{
		Type:    string(evt.Type),
		JobID:   evt.Job.JobID,
		Context: string(evt.Job.Context),
		Kind:    string(evt.Job.Kind),
		Status:  string(evt.Job.Status),
		Message: evt.Message,
		At:      evt.At.UTC().Format(time.RFC3339),
	}
	if evt.Job.Error != nil {
		msg.Error = evt.Job.Error.Message
	}
	if evt.Job.Result != nil {
		msg.ResultURL = evt.Job.Result.DownloadURL
	}
	return msg
}

// subjectToken は "job.completed" を "completed" に変換します。
func subjectToken(t jobs.EventType) string {
	s := string(t)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[i+1:]
		}
	}
	return s
}
