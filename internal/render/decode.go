package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"regexp"
	"strings"

	// DecodeConfig 用のデコーダー登録
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	minEncodedLength = 100
	minDecodedBytes  = 1000
)

var dataURLPrefix = regexp.MustCompile(`^data:image/(\w+);base64,`)

// decodedImage はデコード済みの画像データです。
type decodedImage struct {
	data      []byte
	ext       string
	landscape bool
}

// decodeDataURL は data URL（またはプレフィックスなしの base64）を画像データに変換します。
func decodeDataURL(raw string) (*decodedImage, error) {
	ext := ""
	payload := raw
	if m := dataURLPrefix.FindStringSubmatch(raw); m != nil {
		ext = normalizeExt(m[1])
		payload = raw[len(m[0]):]
	}
	payload = strings.TrimSpace(payload)
	if len(payload) < minEncodedLength {
		return nil, fmt.Errorf("too small or invalid (%d chars)", len(payload))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(data) < minDecodedBytes {
		return nil, fmt.Errorf("decoded buffer too small (%d bytes)", len(data))
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("not an image (%s)", mime.String())
	}
	if ext == "" {
		ext = normalizeExt(strings.TrimPrefix(mime.Extension(), "."))
	}

	return &decodedImage{
		data:      data,
		ext:       ext,
		landscape: isLandscape(data),
	}, nil
}

// decodeLogo はロゴ画像を検証せずにデコードします。
func decodeLogo(raw string) ([]byte, error) {
	payload := raw
	if m := dataURLPrefix.FindStringSubmatch(raw); m != nil {
		payload = raw[len(m[0]):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty logo")
	}
	return data, nil
}

// isLandscape は横長画像かどうかを返します。判定できない場合は縦長扱いです。
func isLandscape(data []byte) bool {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width > cfg.Height
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case "jpeg", "":
		return "jpg"
	default:
		return ext
	}
}
