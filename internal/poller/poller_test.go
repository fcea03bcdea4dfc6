package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
)

// scriptedSource は呼び出しごとに用意した応答を順に返します。最後の応答は繰り返します。
type scriptedSource struct {
	mu        sync.Mutex
	responses [][]jobs.Record
	errs      []error
	calls     int
	contexts  []jobs.ContextID
}

func (s *scriptedSource) ListJobs(_ context.Context, contextID jobs.ContextID) ([]jobs.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.contexts = append(s.contexts, contextID)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func record(id string, status jobs.Status) jobs.Record {
	return jobs.Record{JobID: id, Context: "tab-1", Kind: jobs.KindImage, Status: status}
}

func TestRunReportsBusyThenFinal(t *testing.T) {
	src := &scriptedSource{responses: [][]jobs.Record{
		{record("j1", jobs.StatusRunning)},
		{record("j1", jobs.StatusRunning)},
		{record("j1", jobs.StatusCompleted)},
		{record("j1", jobs.StatusCompleted)},
	}}
	p := New(src, time.Millisecond)

	var updates []Update
	err := p.Run(context.Background(), "tab-1", func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)

	require.Len(t, updates, 3)
	assert.True(t, updates[0].Busy)
	assert.True(t, updates[1].Busy)
	assert.False(t, updates[2].Busy)
	assert.True(t, updates[2].Final)
	assert.Equal(t, jobs.StatusCompleted, updates[2].Jobs[0].Status)

	// 実行中がなくなった後にもう一度だけ取得する
	assert.Equal(t, 4, src.calls)
	for _, c := range src.contexts {
		assert.Equal(t, jobs.ContextID("tab-1"), c)
	}
}

func TestRunWithNoJobsStopsImmediately(t *testing.T) {
	src := &scriptedSource{responses: [][]jobs.Record{nil}}
	p := New(src, time.Hour)

	var updates []Update
	require.NoError(t, p.Run(context.Background(), "tab-9", func(u Update) { updates = append(updates, u) }))
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Final)
	assert.Empty(t, updates[0].Jobs)
	assert.Equal(t, 2, src.calls)
}

func TestRunToleratesTransientErrors(t *testing.T) {
	src := &scriptedSource{
		errs: []error{errors.New("connection reset"), nil, nil},
		responses: [][]jobs.Record{
			nil,
			{record("j1", jobs.StatusFailed)},
		},
	}
	p := New(src, time.Millisecond)

	var final Update
	require.NoError(t, p.Run(context.Background(), "tab-1", func(u Update) { final = u }))
	assert.True(t, final.Final)
	assert.Equal(t, jobs.StatusFailed, final.Jobs[0].Status)
}

func TestRunGivesUpAfterRepeatedErrors(t *testing.T) {
	boom := errors.New("server down")
	src := &scriptedSource{errs: []error{boom, boom, boom}, responses: [][]jobs.Record{nil}}
	p := New(src, time.Millisecond)

	err := p.Run(context.Background(), "tab-1", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{responses: [][]jobs.Record{{record("j1", jobs.StatusRunning)}}}
	p := New(src, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Run(ctx, "tab-1", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewDefaultsInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(&scriptedSource{}, 0).interval)
}
