package jobs

import (
	"context"
	"sync"
)

// RunFunc はジョブIDに対応するレンダリングを実行します。
type RunFunc func(ctx context.Context, jobID string)

// Launcher は呼び出し元をブロックせずにジョブを実行へ回します。
type Launcher interface {
	Launch(ctx context.Context, jobID string) error
}

// GoLauncher はプロセス内の goroutine でジョブを実行します。
// 要求元のコンテキストとは切り離して実行するため、クライアントが切断しても処理は続きます。
type GoLauncher struct {
	run RunFunc
	wg  sync.WaitGroup
}

// NewGoLauncher は GoLauncher を作成します。
func NewGoLauncher(run RunFunc) *GoLauncher {
	return &GoLauncher{run: run}
}

// Launch implements Launcher.
func (l *GoLauncher) Launch(_ context.Context, jobID string) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(context.Background(), jobID)
	}()
	return nil
}

// Wait は実行中のジョブがすべて終わるまで待ちます。
func (l *GoLauncher) Wait() {
	l.wg.Wait()
}
