package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

const (
	workspacePrefix = "remotion_temp_"
	// TempRoute は作業ディレクトリを配信するルートです。
	TempRoute = "/temp-image"
)

// workspace は公開ディレクトリ配下に作るリクエスト単位の作業領域です。
type workspace struct {
	dir     string
	subPath string
	baseURL string
}

// savedImage は作業領域に保存した画像です。失敗した場合は url が空になります。
type savedImage struct {
	path      string
	url       string
	ext       string
	landscape bool
	err       error
}

func (s *Service) createWorkspace(baseURL string) (*workspace, error) {
	name := workspacePrefix + shortID()
	dir := filepath.Join(s.opts.PublicDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError("INTERNAL_ERROR", "作業ディレクトリの作成に失敗しました。", err)
	}
	return &workspace{
		dir:     dir,
		subPath: name,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (w *workspace) url(filename string) string {
	return fmt.Sprintf("%s%s/%s/%s", w.baseURL, TempRoute, w.subPath, filename)
}

func (w *workspace) path(filename string) string {
	return filepath.Join(w.dir, filename)
}

func (w *workspace) remove() {
	if err := os.RemoveAll(w.dir); err != nil {
		logger.Logger.Warn().Err(err).Str("dir", w.dir).Msg("failed to clean up workspace")
	}
}

// saveImages は base64 画像を並列にデコードして保存します。
// 1枚ごとの失敗は savedImage.err に記録し、添字は入力と揃えたままにします。
func (w *workspace) saveImages(ctx context.Context, images []string) ([]savedImage, error) {
	saved := make([]savedImage, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, raw := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeDataURL(raw)
			if err != nil {
				saved[i] = savedImage{err: fmt.Errorf("image %d: %w", i+1, err)}
				return nil
			}
			filename := fmt.Sprintf("img-%d-%s.%s", i+1, shortID(), img.ext)
			if err := os.WriteFile(w.path(filename), img.data, 0o644); err != nil {
				saved[i] = savedImage{err: fmt.Errorf("image %d: %w", i+1, err)}
				return nil
			}
			saved[i] = savedImage{
				path:      w.path(filename),
				url:       w.url(filename),
				ext:       img.ext,
				landscape: img.landscape,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed int
	for _, s := range saved {
		if s.err != nil {
			failed++
			logger.Logger.Warn().Err(s.err).Msg("skipping invalid image")
		}
	}
	if failed == len(saved) {
		return nil, newError("NO_VALID_IMAGES", "No valid images could be processed", nil)
	}
	return saved, nil
}

// saveLogo は担当者ロゴを保存し URL を返します。失敗しても処理は続けます。
func (w *workspace) saveLogo(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	data, err := decodeLogo(raw)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("could not process agent logo")
		return ""
	}
	filename := fmt.Sprintf("agent-logo-%s.png", shortID())
	if err := os.WriteFile(w.path(filename), data, 0o644); err != nil {
		logger.Logger.Warn().Err(err).Msg("could not save agent logo")
		return ""
	}
	return w.url(filename)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
