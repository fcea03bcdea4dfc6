// Package listing はスクレイプされた物件データとそのキャッシュを扱います。
package listing

import (
	"errors"
	"strings"
)

// ErrNoImages は画像が1枚も含まれていないペイロードを表します。
var ErrNoImages = errors.New("listing has no images")

// 既定の表示値
const (
	DefaultTitle = "Başlık Yok"
	DefaultPrice = "Fiyat Yok"
)

// Listing は物件ページから取得したデータです。JSONのキーは拡張機能との互換のため元の名前を使います。
type Listing struct {
	Title      string   `json:"baslik" yaml:"baslik"`
	Price      string   `json:"fiyat" yaml:"fiyat"`
	Location   string   `json:"konum" yaml:"konum"`
	Images     []string `json:"images" yaml:"images"`
	AgentName  string   `json:"agentName,omitempty" yaml:"agentName,omitempty"`
	AgentPhone string   `json:"agentPhone,omitempty" yaml:"agentPhone,omitempty"`
	AgentLogo  string   `json:"agentLogo,omitempty" yaml:"agentLogo,omitempty"`
}

// TitleFields はテンプレートに渡す文字情報です。
type TitleFields struct {
	Title    string `json:"baslik"`
	Price    string `json:"fiyat"`
	Location string `json:"konum"`
}

// Branding は動画末尾に表示する担当者情報です。
type Branding struct {
	AgentName  string `json:"agentName"`
	AgentPhone string `json:"agentPhone"`
	AgentLogo  string `json:"agentLogo"`
}

// Clone は画像スライスも含めて独立したコピーを返します。
func (l Listing) Clone() Listing {
	cp := l
	if l.Images != nil {
		cp.Images = append([]string(nil), l.Images...)
	}
	return cp
}

// Validate はジョブを作成できるだけのデータがあるか確認します。
func (l Listing) Validate() error {
	for _, img := range l.Images {
		if strings.TrimSpace(img) != "" {
			return nil
		}
	}
	return ErrNoImages
}

// ValidImages は空文字を除いた画像を返します。
func (l Listing) ValidImages() []string {
	images := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		if strings.TrimSpace(img) != "" {
			images = append(images, img)
		}
	}
	return images
}

// Fields は既定値を補った文字情報を返します。
func (l Listing) Fields() TitleFields {
	f := TitleFields{
		Title:    strings.TrimSpace(l.Title),
		Price:    strings.TrimSpace(l.Price),
		Location: strings.TrimSpace(l.Location),
	}
	if f.Title == "" {
		f.Title = DefaultTitle
	}
	if f.Price == "" {
		f.Price = DefaultPrice
	}
	return f
}

// Branding は担当者情報を返します。
func (l Listing) Branding() Branding {
	return Branding{
		AgentName:  l.AgentName,
		AgentPhone: l.AgentPhone,
		AgentLogo:  l.AgentLogo,
	}
}
