package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/metrics"
)

const jobIDPrefix = "job_"

var (
	// ErrJobNotFound は対象ジョブがレジストリに存在しない（削除済みを含む）ことを表します。
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition は単調でない状態遷移を表します。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Predicate は List の絞り込み条件です。
type Predicate func(Record) bool

// All は全件にマッチします。
func All() Predicate {
	return func(Record) bool { return true }
}

// ByContext は指定コンテキストのジョブにマッチします。
func ByContext(id ContextID) Predicate {
	return func(r Record) bool { return r.Context == id }
}

// ByStatus は指定状態のいずれかにマッチします。
func ByStatus(statuses ...Status) Predicate {
	return func(r Record) bool {
		for _, s := range statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
}

// And はすべての条件にマッチします。
func And(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Or はいずれかの条件にマッチします。
func Or(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// EvictHook はスイープでレコードが削除されたときに呼ばれます。
type EvictHook func(Record)

// RegistryOption は Registry の設定です。
type RegistryOption func(*Registry)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithEvictHook はスイープ時のフックを登録します。
func WithEvictHook(hook EvictHook) RegistryOption {
	return func(r *Registry) { r.onEvict = append(r.onEvict, hook) }
}

// WithIDGenerator はジョブID生成を差し替えます（テスト用）。
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// Registry はジョブ状態をメモリ上で管理します。永続化はしないため、再起動で履歴は失われます。
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*Record
	now     func() time.Time
	newID   func() string
	onEvict []EvictHook

	lifecycle sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRegistry は Registry を作成します。
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		jobs: make(map[string]*Record),
		now:  time.Now,
		newID: func() string {
			return jobIDPrefix + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create はジョブを running 状態で登録し、そのスナップショットを返します。
// ペイロードはコピーされるため、呼び出し側のデータを後から変更しても影響しません。
func (r *Registry) Create(contextID ContextID, kind Kind, payload listing.Listing) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, exists := r.jobs[id]; !exists {
			break
		}
		id = r.newID()
	}

	now := r.now().UTC()
	record := &Record{
		JobID:     id,
		Context:   contextID,
		Kind:      kind,
		Payload:   payload.Clone(),
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = record
	metrics.JobsRunning.Inc()
	return record.clone()
}

// Get はジョブ情報を取得します。存在しない場合は ok=false を返します。
func (r *Registry) Get(jobID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// List は条件にマッチするジョブを作成順で返します。
func (r *Registry) List(pred Predicate) []Record {
	if pred == nil {
		pred = All()
	}

	r.mu.RLock()
	records := make([]Record, 0, len(r.jobs))
	for _, record := range r.jobs {
		if pred(*record) {
			records = append(records, record.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].JobID < records[j].JobID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// Update は状態を遷移させ、結果またはエラーを付与します。
// 削除済みのジョブに対しては ErrJobNotFound を返します（呼び出し側はログのみ）。
func (r *Registry) Update(jobID string, change Change) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if !canTransition(record.Status, change.Status) {
		return record.clone(), fmt.Errorf("%w: %s -> %s (job=%s)", ErrInvalidTransition, record.Status, change.Status, jobID)
	}

	now := r.now().UTC()
	wasRunning := record.Status == StatusRunning
	record.Status = change.Status
	record.UpdatedAt = now
	if change.Result != nil {
		res := *change.Result
		record.Result = &res
	}
	if change.Error != nil {
		e := *change.Error
		record.Error = &e
	}
	if change.Status.Terminal() {
		record.FinishedAt = now
		if wasRunning {
			metrics.JobsRunning.Dec()
		}
	}
	return record.clone(), nil
}

// Sweep は保持期間を超えた終了済みジョブを削除し、削除件数を返します。
// running / pending のジョブは経過時間に関わらず削除しません。
func (r *Registry) Sweep(retention time.Duration) int {
	now := r.now().UTC()

	r.mu.Lock()
	var evicted []Record
	for id, record := range r.jobs {
		if !record.Status.Terminal() {
			continue
		}
		finished := record.FinishedAt
		if finished.IsZero() {
			finished = record.CreatedAt
		}
		if now.Sub(finished) > retention {
			evicted = append(evicted, record.clone())
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, record := range evicted {
		for _, hook := range r.onEvict {
			hook(record)
		}
	}
	if len(evicted) > 0 {
		metrics.JobsSweptTotal.Add(float64(len(evicted)))
		logger.Logger.Debug().Int("evicted", len(evicted)).Msg("swept finished jobs")
	}
	return len(evicted)
}

// StartSweeper は一定間隔で Sweep を実行するバックグラウンド処理を開始します。
func (r *Registry) StartSweeper(interval, retention time.Duration) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Sweep(retention)
			}
		}
	}(r.stopCh, r.doneCh)
}

// Stop はスイーパーを停止し、終了を待ちます。
func (r *Registry) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.stopCh = nil
	r.doneCh = nil
}

// Len は登録されているジョブ数を返します。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Reset はテスト用に全ジョブを破棄します。
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.jobs {
		if record.Status == StatusRunning {
			metrics.JobsRunning.Dec()
		}
	}
	r.jobs = make(map[string]*Record)
}
