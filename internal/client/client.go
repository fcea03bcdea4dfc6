// Package client はジョブAPIの HTTP クライアントです。CLI とステータスポーリングで使います。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
)

// ErrNotFound はジョブが存在しない（期限切れを含む）ことを表します。
var ErrNotFound = errors.New("job not found")

// APIError はジョブAPIのエラーレスポンスです。
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client はジョブAPIを呼び出します。
type Client struct {
	baseURL string
	http    *http.Client
}

// New は Client を作成します。
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

// StartRequest は POST /api/jobs の本文です。
type StartRequest struct {
	Context jobs.ContextID   `json:"context"`
	Kind    jobs.Kind        `json:"kind"`
	Payload *listing.Listing `json:"payload,omitempty"`
}

// StartResponse は POST /api/jobs の応答です。
type StartResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// Start はジョブを開始します。payload が nil の場合はサーバー側のキャッシュ済みデータを使います。
func (c *Client) Start(ctx context.Context, contextID jobs.ContextID, kind jobs.Kind, payload *listing.Listing) (*StartResponse, error) {
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", StartRequest{Context: contextID, Kind: kind, Payload: payload}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// PutPayload はコンテキストのスクレイプ結果を保存します。
func (c *Client) PutPayload(ctx context.Context, contextID jobs.ContextID, payload listing.Listing) error {
	return c.do(ctx, http.MethodPut, "/api/contexts/"+url.PathEscape(string(contextID))+"/payload", payload, nil)
}

// Get はジョブを取得します。
func (c *Client) Get(ctx context.Context, jobID string) (*jobs.Record, error) {
	var record jobs.Record
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListJobs はコンテキストのジョブ一覧を取得します。
func (c *Client) ListJobs(ctx context.Context, contextID jobs.ContextID) ([]jobs.Record, error) {
	q := url.Values{}
	q.Set("context", string(contextID))
	var resp struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Download は成果物を w に書き出し、サーバーが示したファイル名を返します。
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(jobID)+"/download", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return filenameFrom(resp.Header.Get("Content-Disposition"), jobID), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	}
	return apiErr
}

func filenameFrom(disposition, fallback string) string {
	const marker = "filename=\""
	if i := strings.Index(disposition, marker); i >= 0 {
		rest := disposition[i+len(marker):]
		if j := strings.Index(rest, "\""); j > 0 {
			return rest[:j]
		}
	}
	return fallback
}
