package listing

import (
	"context"
	"sync"
	"time"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/metrics"
)

// Cache はコンテキスト（タブ）ごとのスクレイプ結果を保持します。
// ジョブは作成時にコピーを取るため、ここでの削除は実行中のジョブに影響しません。
type Cache interface {
	Put(ctx context.Context, contextID string, l Listing) error
	Get(ctx context.Context, contextID string) (Listing, bool, error)
	Invalidate(ctx context.Context, contextID string) error
}

type memoryEntry struct {
	listing   Listing
	expiresAt time.Time
}

// MemoryCache はプロセス内のキャッシュ実装です。
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache は MemoryCache を作成します。ttl が 0 以下なら期限なしです。
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put はペイロードのコピーを保存します。
func (c *MemoryCache) Put(_ context.Context, contextID string, l Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{listing: l.Clone()}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[contextID] = entry
	metrics.CachedPayloads.Set(float64(len(c.entries)))
	return nil
}

// Get はキャッシュ済みのペイロードを返します。
func (c *MemoryCache) Get(_ context.Context, contextID string) (Listing, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[contextID]
	if !ok {
		return Listing{}, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, contextID)
		metrics.CachedPayloads.Set(float64(len(c.entries)))
		return Listing{}, false, nil
	}
	return entry.listing.Clone(), true, nil
}

// Invalidate はコンテキストのペイロードを破棄します。
func (c *MemoryCache) Invalidate(_ context.Context, contextID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, contextID)
	metrics.CachedPayloads.Set(float64(len(c.entries)))
	return nil
}

// Reset はテスト用に全エントリを破棄します。
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	metrics.CachedPayloads.Set(0)
}
