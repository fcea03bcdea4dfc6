// Package poller はコンテキストのジョブ状態を一定間隔で取得し、画面へ反映するための更新を通知します。
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

// DefaultInterval は既定のポーリング間隔です。
const DefaultInterval = 2 * time.Second

// Source はジョブ一覧の取得元です。読み取り専用で、副作用を持ってはいけません。
type Source interface {
	ListJobs(ctx context.Context, contextID jobs.ContextID) ([]jobs.Record, error)
}

// Update は1回分のポーリング結果です。
type Update struct {
	Jobs []jobs.Record
	// Busy は実行中のジョブが残っているかどうかです。
	Busy bool
	// Final は最後の更新であることを表します。
	Final bool
}

// Poller はジョブ状態のポーリングを行います。
type Poller struct {
	source    Source
	interval  time.Duration
	maxErrors int
}

// New は Poller を作成します。interval が 0 以下なら DefaultInterval を使います。
func New(source Source, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{source: source, interval: interval, maxErrors: 3}
}

// Run は実行中のジョブがなくなるまでポーリングし、最後にもう一度状態を取得して終了します。
// 連続して取得に失敗した場合はエラーを返します。
func (p *Poller) Run(ctx context.Context, contextID jobs.ContextID, onUpdate func(Update)) error {
	if p.source == nil {
		return errors.New("poller source is nil")
	}
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	log := logger.WithContextID(string(contextID))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		records, err := p.source.ListJobs(ctx, contextID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			log.Warn().Err(err).Int("failures", failures).Msg("status poll failed")
			if failures >= p.maxErrors {
				return err
			}
		} else {
			failures = 0
			if !anyRunning(records) {
				return p.finish(ctx, contextID, onUpdate)
			}
			onUpdate(Update{Jobs: records, Busy: true})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) finish(ctx context.Context, contextID jobs.ContextID, onUpdate func(Update)) error {
	records, err := p.source.ListJobs(ctx, contextID)
	if err != nil {
		return err
	}
	onUpdate(Update{Jobs: records, Busy: anyRunning(records), Final: true})
	return nil
}

func anyRunning(records []jobs.Record) bool {
	for _, r := range records {
		if r.Status == jobs.StatusRunning || r.Status == jobs.StatusPending {
			return true
		}
	}
	return false
}
