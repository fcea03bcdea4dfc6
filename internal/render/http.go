package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

// Generator はレンダラーエンドポイントが利用するサービスです。
type Generator interface {
	RenderPost(ctx context.Context, baseURL string, l listing.Listing) (*Media, error)
	RenderStory(ctx context.Context, baseURL string, l listing.Listing) (*Media, error)
	RenderFlyer(ctx context.Context, baseURL string, l listing.Listing) (*Media, error)
}

// HandlerOptions はレンダラーエンドポイントの設定です。
type HandlerOptions struct {
	// PublicBaseURL はテンプレートエンジンが画像を取得する際のベースURLです。空ならリクエストのホストを使います。
	PublicBaseURL string
	MaxBodyBytes  int64
}

type renderFunc func(ctx context.Context, baseURL string, l listing.Listing) (*Media, error)

// PostHandler は POST /api/generate のハンドラーを返します。
func PostHandler(svc Generator, opts HandlerOptions) gin.HandlerFunc {
	return generateHandler(svc.RenderPost, opts, "instagram-post.jpg", "Image generation failed")
}

// StoryHandler は POST /api/generate-video のハンドラーを返します。
func StoryHandler(svc Generator, opts HandlerOptions) gin.HandlerFunc {
	return generateHandler(svc.RenderStory, opts, "instagram-story.mp4", "Video generation failed")
}

// FlyerHandler は POST /api/generate-flyer のハンドラーを返します。
func FlyerHandler(svc Generator, opts HandlerOptions) gin.HandlerFunc {
	return generateHandler(svc.RenderFlyer, opts, "listing-flyer.pdf", "Flyer generation failed")
}

func generateHandler(render renderFunc, opts HandlerOptions, filename, failure string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.MaxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxBodyBytes)
		}

		var body listing.Listing
		if err := c.ShouldBindJSON(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":   "Request body too large",
					"details": fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
		if len(body.ValidImages()) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "At least one image is required",
			})
			return
		}

		media, err := render(c.Request.Context(), baseURL(c, opts), body)
		if err != nil {
			logger.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("render request failed")
			respondWithError(c, err, failure)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, media.ContentType, media.Data)
	}
}

// TempImageHandler は GET /temp-image/*path のハンドラーを返します。公開ディレクトリ外へのアクセスは拒否します。
func TempImageHandler(publicDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		root, err := filepath.Abs(publicDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid public dir"})
			return
		}
		rel := strings.TrimPrefix(c.Param("path"), "/")
		full := filepath.Join(root, filepath.FromSlash(rel))
		if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid path"})
			return
		}

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("Content-Type", contentTypeFor(full))
		c.File(full)
	}
}

func respondWithError(c *gin.Context, err error, summary string) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == "INVALID_INPUT":
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   apiErr.Message,
			"details": apiErr.Message,
		})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   summary,
			"details": apiErr.Message,
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   summary,
			"details": "rendering timed out",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   summary,
			"details": err.Error(),
		})
	}
}

func baseURL(c *gin.Context, opts HandlerOptions) string {
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
