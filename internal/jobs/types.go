package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終了状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canTransition は状態遷移が単調（pending → running → completed|failed）かを判定します。
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Kind は生成する成果物の種別です。
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindFlyer Kind = "flyer"
)

// ParseKind は文字列を Kind に変換します。
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindImage, KindVideo, KindFlyer:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ContextID はジョブを要求したタブやセッションを表します。
type ContextID string

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultRef はダウンロード可能な成果物への参照です。
type ResultRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

// Record はジョブの現在状態を表します。ペイロードは画像を含み大きいため JSON には出しません。
type Record struct {
	JobID      string          `json:"jobId"`
	Context    ContextID       `json:"context"`
	Kind       Kind            `json:"kind"`
	Payload    listing.Listing `json:"-"`
	Status     Status          `json:"status"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Result     *ResultRef      `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt time.Time       `json:"finishedAt,omitzero"`
}

// clone はレジストリ外へ渡すためのコピーを返します。
func (r *Record) clone() Record {
	cp := *r
	cp.Payload = r.Payload.Clone()
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	return cp
}

// Change は Update で適用する状態変更です。
type Change struct {
	Status Status
	Result *ResultRef
	Error  *ErrorInfo
}
