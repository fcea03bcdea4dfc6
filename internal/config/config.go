// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 実行方式
const (
	ExecutorGoroutine = "goroutine"
	ExecutorAsynq     = "asynq"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port          string // APIサーバーのポート番号
	GinMode       string // Ginの実行モード (debug, release, test)
	LogLevel      string // ログレベル (debug, info, warn, error)
	SessionSecret string // セッション署名用の秘密鍵

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// レンダラー設定
	PublicDir          string        // 一時画像を配置する公開ディレクトリ
	PublicBaseURL      string        // コンポジターから見たサーバーのベースURL（空ならリクエストから推定）
	RemotionBinary     string        // Remotion CLI の実行ファイル
	RemotionEntry      string        // Remotion のエントリポイント（バンドル済みディレクトリ）
	MaxImages          int           // 動画に使う最大画像数
	MaxBodyBytes       int64         // リクエストボディの上限
	ImageRenderTimeout time.Duration // 画像レンダリングのタイムアウト
	VideoRenderTimeout time.Duration // 動画レンダリングのタイムアウト
	RendererAPIKeyHash string        // レンダラーAPIキーのbcryptハッシュ（空なら認証なし）

	// ジョブ設定
	RendererURL      string        // ディスパッチャーが呼び出すレンダラーのURL
	RendererAPIKey   string        // ディスパッチャーが送るAPIキー
	ResultDir        string        // 成果物の保存先
	JobRetention     time.Duration // 終了済みジョブの保持期間
	JobSweepInterval time.Duration // スイープ間隔
	JobExecutor      string        // goroutine または asynq
	QueueRedisURL    string        // Asynq用Redis接続URL
	QueueConcurrency int           // Asynqワーカーの並列数

	// スクレイプキャッシュ設定
	CacheBackend  string        // memory または redis
	CacheRedisURL string        // キャッシュ用Redis接続URL
	CacheTTL      time.Duration // キャッシュの有効期限

	// 通知設定
	NATSURL string // 空なら NATS 通知は無効
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	port := getEnv("PORT", "8080")
	config := &Config{
		Port:          port,
		GinMode:       getEnv("GIN_MODE", "debug"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SessionSecret: getEnv("SESSION_SECRET", "dev-session-secret-change-me"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		PublicDir:          getEnv("PUBLIC_DIR", "public"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		RemotionBinary:     getEnv("REMOTION_BINARY", "npx"),
		RemotionEntry:      getEnv("REMOTION_ENTRY", "remotion/index.ts"),
		MaxImages:          getEnvAsInt("MAX_IMAGES", 6),
		MaxBodyBytes:       getEnvAsInt64("MAX_BODY_BYTES", 10*1024*1024), // 10MB
		ImageRenderTimeout: getEnvAsDuration("IMAGE_RENDER_TIMEOUT", 60*time.Second),
		VideoRenderTimeout: getEnvAsDuration("VIDEO_RENDER_TIMEOUT", 120*time.Second),
		RendererAPIKeyHash: getEnv("RENDERER_API_KEY_HASH", ""),

		RendererURL:      getEnv("RENDERER_URL", "http://127.0.0.1:"+port),
		RendererAPIKey:   getEnv("RENDERER_API_KEY", ""),
		ResultDir:        getEnv("RESULT_DIR", filepath.Join(os.TempDir(), "listing-results")),
		JobRetention:     getEnvAsDuration("JOB_RETENTION", 5*time.Minute),
		JobSweepInterval: getEnvAsDuration("JOB_SWEEP_INTERVAL", time.Minute),
		JobExecutor:      strings.ToLower(getEnv("JOB_EXECUTOR", ExecutorGoroutine)),
		QueueRedisURL:    getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueConcurrency: getEnvAsInt("QUEUE_CONCURRENCY", 4),

		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
		CacheRedisURL: getEnv("CACHE_REDIS_URL", "redis://127.0.0.1:6379/1"),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 30*time.Minute),

		NATSURL: getEnv("NATS_URL", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.JobExecutor {
	case ExecutorGoroutine, ExecutorAsynq:
	default:
		return fmt.Errorf("JOB_EXECUTOR must be %q or %q (got %q)", ExecutorGoroutine, ExecutorAsynq, c.JobExecutor)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q (got %q)", CacheMemory, CacheRedis, c.CacheBackend)
	}
	if c.MaxImages <= 0 {
		return fmt.Errorf("MAX_IMAGES must be positive")
	}
	if c.QueueConcurrency <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive")
	}
	if c.JobRetention <= 0 || c.JobSweepInterval <= 0 {
		return fmt.Errorf("JOB_RETENTION and JOB_SWEEP_INTERVAL must be positive")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" || c.SessionSecret == "dev-session-secret-change-me" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.JobExecutor == ExecutorAsynq && c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required when JOB_EXECUTOR=asynq")
		}
		if c.RemotionBinary == "" {
			return fmt.Errorf("REMOTION_BINARY is required in release mode")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "90s" 形式、または秒数として環境変数を読み込みます。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
