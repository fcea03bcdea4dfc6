// Package render は物件データから Instagram 用の画像・動画・チラシを生成します。
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

// 成果物の Content-Type
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypeMP4  = "video/mp4"
	ContentTypePDF  = "application/pdf"
)

const storySlots = 6

// Media はレンダリング結果です。
type Media struct {
	Data        []byte
	ContentType string
}

// Options は Service の設定です。
type Options struct {
	PublicDir    string
	MaxImages    int
	ImageTimeout time.Duration
	VideoTimeout time.Duration
}

// Service は受け取った物件データをテンプレートエンジンへ渡して成果物を作ります。
type Service struct {
	opts       Options
	compositor Compositor
}

// NewService は Service を初期化します。
func NewService(opts Options, compositor Compositor) (*Service, error) {
	if compositor == nil {
		return nil, errors.New("compositor is nil")
	}
	if opts.PublicDir == "" {
		return nil, errors.New("public dir is required")
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = storySlots
	}
	if err := os.MkdirAll(opts.PublicDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create public dir: %w", err)
	}
	return &Service{opts: opts, compositor: compositor}, nil
}

// PublicDir は一時ファイルを置く公開ディレクトリを返します。
func (s *Service) PublicDir() string { return s.opts.PublicDir }

type postProps struct {
	Title    string `json:"baslik"`
	Price    string `json:"fiyat"`
	Location string `json:"konum"`
	Image1   string `json:"image1"`
}

type storyProps struct {
	Title             string `json:"baslik"`
	Price             string `json:"fiyat"`
	Location          string `json:"konum"`
	Image1            string `json:"image1"`
	Image2            string `json:"image2"`
	Image3            string `json:"image3"`
	Image4            string `json:"image4"`
	Image5            string `json:"image5"`
	Image6            string `json:"image6"`
	AgentName         string `json:"agentName"`
	AgentPhone        string `json:"agentPhone"`
	AgentLogo         string `json:"agentLogo"`
	ImageOrientations []bool `json:"imageOrientations"`
}

// RenderPost は先頭の有効な画像を使って投稿画像 (JPEG) を生成します。
func (s *Service) RenderPost(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	images, err := s.requireImages(l)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, s.opts.ImageTimeout)
	defer cancel()

	ws, err := s.createWorkspace(baseURL)
	if err != nil {
		return nil, err
	}
	defer ws.remove()

	saved, err := ws.saveImages(ctx, images)
	if err != nil {
		return nil, err
	}
	var first string
	for _, img := range saved {
		if img.url != "" {
			first = img.url
			break
		}
	}

	fields := l.Fields()
	props := postProps{
		Title:    fields.Title,
		Price:    fields.Price,
		Location: fields.Location,
		Image1:   first,
	}
	output := ws.path("post.jpg")
	if err := s.compositor.Still(ctx, CompositionPost, props, output); err != nil {
		return nil, err
	}
	return readMedia(output, ContentTypeJPEG)
}

// RenderStory は最大6枚の画像からストーリー動画 (H.264) を生成します。
func (s *Service) RenderStory(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	images, err := s.requireImages(l)
	if err != nil {
		return nil, err
	}
	if len(images) > storySlots {
		images = images[:storySlots]
	}
	ctx, cancel := withTimeout(ctx, s.opts.VideoTimeout)
	defer cancel()

	ws, err := s.createWorkspace(baseURL)
	if err != nil {
		return nil, err
	}
	defer ws.remove()

	saved, err := ws.saveImages(ctx, images)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, storySlots)
	orientations := make([]bool, 0, storySlots)
	for _, img := range saved {
		urls = append(urls, img.url)
		orientations = append(orientations, img.landscape)
	}
	for len(urls) < storySlots {
		urls = append(urls, urls[len(urls)-1])
		orientations = append(orientations, false)
	}

	fields := l.Fields()
	props := storyProps{
		Title:             fields.Title,
		Price:             fields.Price,
		Location:          fields.Location,
		Image1:            urls[0],
		Image2:            urls[1],
		Image3:            urls[2],
		Image4:            urls[3],
		Image5:            urls[4],
		Image6:            urls[5],
		AgentName:         l.AgentName,
		AgentPhone:        l.AgentPhone,
		AgentLogo:         ws.saveLogo(l.AgentLogo),
		ImageOrientations: orientations,
	}

	output := ws.path("story-" + shortID() + ".mp4")
	if err := s.compositor.Render(ctx, CompositionStory, props, output); err != nil {
		return nil, err
	}
	return readMedia(output, ContentTypeMP4)
}

// RenderFlyer は画像を1枚1ページにまとめたPDFチラシを生成します。
// 1ページ目には物件名と価格を重ねて表示します。
func (s *Service) RenderFlyer(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	images, err := s.requireImages(l)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, s.opts.ImageTimeout)
	defer cancel()

	ws, err := s.createWorkspace(baseURL)
	if err != nil {
		return nil, err
	}
	defer ws.remove()

	saved, err := ws.saveImages(ctx, images)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, img := range saved {
		if img.path != "" && pdfImportable(img.ext) {
			files = append(files, img.path)
		}
	}
	if len(files) == 0 {
		return nil, newError("NO_VALID_IMAGES", "No images in a format supported for PDF output", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output := ws.path("flyer.pdf")
	if err := pdfapi.ImportImagesFile(files, output, nil, nil); err != nil {
		return nil, newError("RENDER_FAILED", "PDFの作成に失敗しました。", err)
	}

	fields := l.Fields()
	caption := fmt.Sprintf("%s\n%s", fields.Title, fields.Price)
	if fields.Location != "" {
		caption += " | " + fields.Location
	}
	// 文字の重ね描きに失敗しても画像だけのPDFとして返す
	if err := pdfapi.AddTextWatermarksFile(output, "", []string{"1"}, true, caption, "pos:tl, offset:20 -20, scale:1 abs, rot:0, points:18", nil); err != nil {
		logger.Logger.Warn().Err(err).Msg("failed to add flyer caption")
	}

	return readMedia(output, ContentTypePDF)
}

func (s *Service) requireImages(l listing.Listing) ([]string, error) {
	images := l.ValidImages()
	if len(images) == 0 {
		return nil, newError("INVALID_INPUT", "At least one image is required", listing.ErrNoImages)
	}
	if len(images) > s.opts.MaxImages {
		images = images[:s.opts.MaxImages]
	}
	return images, nil
}

func readMedia(path, contentType string) (*Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError("RENDER_FAILED", "rendered output could not be read", err)
	}
	if len(data) == 0 {
		return nil, newError("RENDER_FAILED", "rendered output is empty", nil)
	}
	return &Media{Data: data, ContentType: contentType}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func pdfImportable(ext string) bool {
	switch ext {
	case "jpg", "png", "webp", "tif", "tiff":
		return true
	default:
		return false
	}
}
