package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/metrics"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/render"
)

var (
	// ErrUnknownKind は未対応の種別が指定されたことを表します。
	ErrUnknownKind = errors.New("unknown job kind")
	// ErrMissingContext はコンテキストIDが指定されていないことを表します。
	ErrMissingContext = errors.New("context id is required")
)

// IsPrecondition はジョブ作成前に弾かれたエラーかどうかを返します。
func IsPrecondition(err error) bool {
	return errors.Is(err, listing.ErrNoImages) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrMissingContext)
}

// Renderer は外部レンダラーの呼び出しを表します。
type Renderer interface {
	RenderImage(ctx context.Context, fields listing.TitleFields, image string) (*render.Media, error)
	RenderVideo(ctx context.Context, fields listing.TitleFields, images []string, branding listing.Branding) (*render.Media, error)
	RenderFlyer(ctx context.Context, fields listing.TitleFields, images []string, branding listing.Branding) (*render.Media, error)
}

// ResultStore は生成物を保存します。
type ResultStore interface {
	Save(ctx context.Context, jobID, filename string, data []byte) (int64, error)
	Delete(jobID string) error
}

// DispatcherOptions は Dispatcher の設定です。
type DispatcherOptions struct {
	// Timeouts は種別ごとのレンダリング待ち時間です。0 の場合はタイムアウトなし。
	Timeouts map[Kind]time.Duration
	// DownloadBaseURL は成果物URLの接頭辞です。空なら /api/jobs を使います。
	DownloadBaseURL string
	// Now は現在時刻の取得方法です（テスト用）。
	Now func() time.Time
}

// Dispatcher は生成要求を受け付け、ジョブの作成と非同期実行を担います。
type Dispatcher struct {
	registry *Registry
	renderer Renderer
	results  ResultStore
	notifier Notifier
	launcher Launcher
	opts     DispatcherOptions
}

// NewDispatcher は Dispatcher を初期化します。既定では goroutine で実行します。
func NewDispatcher(registry *Registry, renderer Renderer, results ResultStore, notifier Notifier, opts DispatcherOptions) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if renderer == nil {
		return nil, errors.New("renderer is nil")
	}
	if results == nil {
		return nil, errors.New("result store is nil")
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Dispatcher{
		registry: registry,
		renderer: renderer,
		results:  results,
		notifier: notifier,
		opts:     opts,
	}
	d.launcher = NewGoLauncher(d.Execute)
	return d, nil
}

// SetLauncher は実行方式を差し替えます。
func (d *Dispatcher) SetLauncher(l Launcher) {
	if l != nil {
		d.launcher = l
	}
}

// Wait は goroutine で実行中のジョブが終わるまで待ちます。
func (d *Dispatcher) Wait() {
	if w, ok := d.launcher.(interface{ Wait() }); ok {
		w.Wait()
	}
}

// StartGeneration はジョブを作成して即座にIDを返します。レンダリングはバックグラウンドで行われます。
// 画像がない場合などの前提条件エラーではジョブを作成しません。
func (d *Dispatcher) StartGeneration(ctx context.Context, contextID ContextID, kind Kind, payload listing.Listing) (string, error) {
	if strings.TrimSpace(string(contextID)) == "" {
		metrics.JobsRejectedTotal.Inc()
		return "", ErrMissingContext
	}
	if _, err := ParseKind(string(kind)); err != nil {
		metrics.JobsRejectedTotal.Inc()
		return "", err
	}
	if err := payload.Validate(); err != nil {
		metrics.JobsRejectedTotal.Inc()
		return "", err
	}

	record := d.registry.Create(contextID, kind, payload)
	metrics.JobsStartedTotal.WithLabelValues(string(kind)).Inc()

	log := logger.WithJobID(record.JobID)
	log.Info().
		Str("context_id", string(contextID)).
		Str("kind", string(kind)).
		Int("images", len(payload.Images)).
		Msg("generation started")
	d.notifier.Notify(ctx, startedEvent(record, d.opts.Now()))

	if err := d.launcher.Launch(ctx, record.JobID); err != nil {
		d.fail(context.Background(), record.JobID, &ErrorInfo{
			Code:    "LAUNCH_FAILED",
			Message: err.Error(),
		})
	}
	return record.JobID, nil
}

// Execute はジョブを実行し、結果をレジストリへ反映します。Launcher から呼ばれます。
func (d *Dispatcher) Execute(ctx context.Context, jobID string) {
	log := logger.WithJobID(jobID)

	record, ok := d.registry.Get(jobID)
	if !ok {
		log.Warn().Msg("job disappeared before execution")
		return
	}
	if record.Status != StatusRunning {
		log.Debug().Str("status", string(record.Status)).Msg("job already finished, skipping")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("render panicked")
			d.fail(ctx, jobID, &ErrorInfo{Code: "INTERNAL_ERROR", Message: fmt.Sprint(r)})
		}
	}()

	renderCtx := ctx
	if timeout := d.opts.Timeouts[record.Kind]; timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	media, err := d.render(renderCtx, record)
	metrics.RenderDuration.WithLabelValues(string(record.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		var remote *render.RemoteError
		if errors.As(err, &remote) && remote.Details != "" {
			log.Warn().Int("status", remote.StatusCode).Str("details", remote.Details).Msg("renderer reported failure details")
		}
		d.fail(ctx, jobID, errorInfoFrom(err, d.opts.Timeouts[record.Kind]))
		return
	}
	if media == nil || len(media.Data) == 0 {
		d.fail(ctx, jobID, &ErrorInfo{Code: "EMPTY_RESULT", Message: "renderer returned an empty result"})
		return
	}

	filename := resultFilename(record.Kind, d.opts.Now())
	size, err := d.results.Save(ctx, jobID, filename, media.Data)
	if err != nil {
		d.fail(ctx, jobID, &ErrorInfo{Code: "STORAGE_ERROR", Message: err.Error()})
		return
	}

	updated, err := d.registry.Update(jobID, Change{
		Status: StatusCompleted,
		Result: &ResultRef{
			Filename:    filename,
			ContentType: media.ContentType,
			Size:        size,
			DownloadURL: d.downloadURL(jobID),
		},
	})
	if err != nil {
		// 削除済みのジョブは復活させず、結果を破棄する
		log.Warn().Err(err).Msg("discarding late render result")
		if delErr := d.results.Delete(jobID); delErr != nil {
			log.Warn().Err(delErr).Msg("failed to delete discarded result")
		}
		return
	}

	metrics.JobsCompletedTotal.WithLabelValues(string(record.Kind)).Inc()
	log.Info().
		Int64("size", size).
		Dur("elapsed", time.Since(start)).
		Msg("generation completed")
	d.notifier.Notify(ctx, completedEvent(updated, d.opts.Now()))
}

func (d *Dispatcher) render(ctx context.Context, record Record) (*render.Media, error) {
	payload := record.Payload
	fields := payload.Fields()
	images := payload.ValidImages()

	switch record.Kind {
	case KindImage:
		return d.renderer.RenderImage(ctx, fields, images[0])
	case KindVideo:
		return d.renderer.RenderVideo(ctx, fields, images, payload.Branding())
	case KindFlyer:
		return d.renderer.RenderFlyer(ctx, fields, images, payload.Branding())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, record.Kind)
	}
}

func (d *Dispatcher) fail(ctx context.Context, jobID string, info *ErrorInfo) {
	log := logger.WithJobID(jobID)

	updated, err := d.registry.Update(jobID, Change{
		Status: StatusFailed,
		Error:  info,
	})
	if err != nil {
		log.Warn().Err(err).Str("code", info.Code).Msg("could not record job failure")
		return
	}

	metrics.JobsFailedTotal.WithLabelValues(string(updated.Kind)).Inc()
	log.Error().Str("code", info.Code).Str("reason", info.Message).Msg("generation failed")
	d.notifier.Notify(ctx, failedEvent(updated, info.Message, d.opts.Now()))
}

func (d *Dispatcher) downloadURL(jobID string) string {
	base := strings.TrimRight(d.opts.DownloadBaseURL, "/")
	if base == "" {
		base = "/api/jobs"
	}
	return fmt.Sprintf("%s/%s/download", base, jobID)
}

func errorInfoFrom(err error, timeout time.Duration) *ErrorInfo {
	var remote *render.RemoteError
	switch {
	case errors.As(err, &remote):
		return &ErrorInfo{Code: "RENDER_FAILED", Message: remote.Message()}
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorInfo{Code: "RENDER_TIMEOUT", Message: fmt.Sprintf("renderer did not respond within %s", timeout)}
	default:
		return &ErrorInfo{Code: "TRANSPORT_ERROR", Message: err.Error()}
	}
}

func resultFilename(kind Kind, now time.Time) string {
	ts := now.UnixMilli()
	switch kind {
	case KindVideo:
		return fmt.Sprintf("sahibinden_story_%d.mp4", ts)
	case KindFlyer:
		return fmt.Sprintf("sahibinden_flyer_%d.pdf", ts)
	default:
		return fmt.Sprintf("sahibinden_post_%d.jpg", ts)
	}
}
