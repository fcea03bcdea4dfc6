package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

const (
	taskTypeRender = "listing:render"
	renderQueue    = "render"
)

// TaskPayload はキューに載せるジョブ情報です。画像データはレジストリ側に残し、IDのみを渡します。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// QueueLauncher は Asynq (Redis) 経由でジョブを実行します。
// レジストリはプロセス内にあるため、ワーカーも同じプロセスで動かす前提です。
type QueueLauncher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	run    RunFunc
}

// NewQueueLauncher は QueueLauncher を初期化します。
func NewQueueLauncher(redisURL string, concurrency int, run RunFunc) (*QueueLauncher, error) {
	if run == nil {
		return nil, errors.New("run func is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	q := &QueueLauncher{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				renderQueue: 1,
			},
		}),
		mux: asynq.NewServeMux(),
		run: run,
	}
	q.mux.HandleFunc(taskTypeRender, q.handleRenderTask)
	return q, nil
}

// Start はワーカーをバックグラウンドで起動します。
func (q *QueueLauncher) Start() {
	go func() {
		if err := q.server.Run(q.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			logger.Logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (q *QueueLauncher) Shutdown() error {
	q.server.Shutdown()
	return q.client.Close()
}

// Launch implements Launcher.
func (q *QueueLauncher) Launch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeRender, body, asynq.Queue(renderQueue))
	// レンダリングは外部呼び出しのため再試行しない
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("enqueue render task: %w", err)
	}
	logger.WithJobID(jobID).Debug().Str("task_id", info.ID).Msg("render task enqueued")
	return nil
}

func (q *QueueLauncher) handleRenderTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}
	q.run(ctx, payload.JobID)
	return nil
}
