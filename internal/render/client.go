package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
)

// レンダラーのエンドポイント
const (
	PathPost  = "/api/generate"
	PathStory = "/api/generate-video"
	PathFlyer = "/api/generate-flyer"
)

// Client はレンダラーの HTTP API を呼び出します。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient は Client を作成します。httpClient が nil の場合はタイムアウトなしの既定クライアントを使います。
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("renderer url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, http: httpClient}, nil
}

// RenderImage は先頭画像1枚とタイトル情報で投稿画像を要求します。
func (c *Client) RenderImage(ctx context.Context, fields listing.TitleFields, image string) (*Media, error) {
	return c.post(ctx, PathPost, listing.Listing{
		Title:    fields.Title,
		Price:    fields.Price,
		Location: fields.Location,
		Images:   []string{image},
	})
}

// RenderVideo は全画像と担当者情報でストーリー動画を要求します。
func (c *Client) RenderVideo(ctx context.Context, fields listing.TitleFields, images []string, branding listing.Branding) (*Media, error) {
	return c.post(ctx, PathStory, requestBody(fields, images, branding))
}

// RenderFlyer は全画像でPDFチラシを要求します。
func (c *Client) RenderFlyer(ctx context.Context, fields listing.TitleFields, images []string, branding listing.Branding) (*Media, error) {
	return c.post(ctx, PathFlyer, requestBody(fields, images, branding))
}

func requestBody(fields listing.TitleFields, images []string, branding listing.Branding) listing.Listing {
	return listing.Listing{
		Title:      fields.Title,
		Price:      fields.Price,
		Location:   fields.Location,
		Images:     append([]string(nil), images...),
		AgentName:  branding.AgentName,
		AgentPhone: branding.AgentPhone,
		AgentLogo:  branding.AgentLogo,
	}
}

func (c *Client) post(ctx context.Context, path string, body listing.Listing) (*Media, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// タイムアウトは context のエラーとして返す
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s after %s: %w", path, time.Since(start).Round(time.Millisecond), ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", path, ctxErr)
		}
		return nil, fmt.Errorf("read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remote := &RemoteError{StatusCode: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &body) == nil {
			remote.Summary = body.Error
			remote.Details = body.Details
		}
		return nil, remote
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return &Media{Data: data, ContentType: contentType}, nil
}
