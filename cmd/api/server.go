package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/auth"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/config"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/nats"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/render"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/storage"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/websocket"
)

// app は起動時に組み立てる依存関係一式です。
type app struct {
	cfg        *config.Config
	registry   *jobs.Registry
	dispatcher *jobs.Dispatcher
	cache      listing.Cache
	results    *storage.Local
	renderer   *render.Service
	hub        *websocket.Hub
	guard      *auth.Guard

	queue     *jobs.QueueLauncher
	publisher *nats.Publisher
	closers   []func()
}

// newApp は設定に従って各コンポーネントを初期化します。
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, hub: websocket.NewHub(), guard: auth.NewGuard(cfg.RendererAPIKeyHash)}

	results, err := storage.NewLocal(cfg.ResultDir)
	if err != nil {
		return nil, err
	}
	a.results = results

	a.registry = jobs.NewRegistry(jobs.WithEvictHook(func(r jobs.Record) {
		if err := results.Delete(r.JobID); err != nil {
			logger.WithJobID(r.JobID).Warn().Err(err).Msg("failed to delete swept result")
		}
	}))

	switch cfg.CacheBackend {
	case config.CacheRedis:
		cache, err := listing.NewRedisCacheFromURL(ctx, cfg.CacheRedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.cache = cache
		a.closers = append(a.closers, func() { _ = cache.Close() })
	default:
		a.cache = listing.NewMemoryCache(cfg.CacheTTL)
	}

	a.renderer, err = render.NewService(render.Options{
		PublicDir:    cfg.PublicDir,
		MaxImages:    cfg.MaxImages,
		ImageTimeout: cfg.ImageRenderTimeout,
		VideoTimeout: cfg.VideoRenderTimeout,
	}, render.RemotionCLI{Binary: cfg.RemotionBinary, Entry: cfg.RemotionEntry})
	if err != nil {
		return nil, err
	}

	client, err := render.NewClient(cfg.RendererURL, cfg.RendererAPIKey, nil)
	if err != nil {
		return nil, err
	}

	notifiers := jobs.MultiNotifier{jobs.LogNotifier{}, a.hub}
	if cfg.NATSURL != "" {
		publisher, err := nats.NewPublisher(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
		notifiers = append(notifiers, publisher)
	}

	a.dispatcher, err = jobs.NewDispatcher(a.registry, client, results, notifiers, jobs.DispatcherOptions{
		Timeouts: dispatchTimeouts(cfg),
	})
	if err != nil {
		return nil, err
	}

	if cfg.JobExecutor == config.ExecutorAsynq {
		queue, err := jobs.NewQueueLauncher(cfg.QueueRedisURL, cfg.QueueConcurrency, a.dispatcher.Execute)
		if err != nil {
			return nil, fmt.Errorf("failed to init job queue: %w", err)
		}
		a.queue = queue
		a.dispatcher.SetLauncher(queue)
	}

	return a, nil
}

// start はバックグラウンド処理を開始します。
func (a *app) start(ctx context.Context) {
	go a.hub.Run(ctx)
	a.registry.StartSweeper(a.cfg.JobSweepInterval, a.cfg.JobRetention)
	if a.queue != nil {
		a.queue.Start()
	}
}

// close は実行中のジョブを待ってから各接続を閉じます。
func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Logger.Warn().Err(err).Msg("failed to shut down job queue")
		}
	}
	a.dispatcher.Wait()
	a.registry.Stop()
	if a.publisher != nil {
		a.publisher.Close()
	}
	for _, fn := range a.closers {
		fn()
	}
}

// setupRouter はミドルウェアとルーティングを設定します。
func (a *app) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware())

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   a.cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	corsConfig := cors.DefaultConfig()
	origins := a.cfg.AllowedOrigins()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", websocket.Handler(a.hub))
	router.GET(render.TempRoute+"/*path", render.TempImageHandler(a.renderer.PublicDir()))

	api := router.Group("/api")
	{
		h := &jobAPI{
			dispatcher: a.dispatcher,
			registry:   a.registry,
			cache:      a.cache,
			results:    a.results,
		}
		contexts := api.Group("/contexts/:id")
		{
			contexts.PUT("/payload", h.putPayload)
			contexts.GET("/payload", h.getPayload)
			contexts.DELETE("", h.deleteContext)
			contexts.POST("/navigate", h.navigateContext)
		}

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("", h.startJob)
			jobRoutes.GET("", h.listJobs)
			jobRoutes.GET("/:id", h.getJob)
			jobRoutes.GET("/:id/download", h.downloadJob)
		}

		// レンダラーAPI（ディスパッチャーや外部クライアントから呼ばれる）
		opts := render.HandlerOptions{PublicBaseURL: a.cfg.PublicBaseURL, MaxBodyBytes: a.cfg.MaxBodyBytes}
		renderer := api.Group("", a.guard.RequireAPIKey())
		{
			renderer.POST(trimAPI(render.PathPost), render.PostHandler(a.renderer, opts))
			renderer.POST(trimAPI(render.PathStory), render.StoryHandler(a.renderer, opts))
			renderer.POST(trimAPI(render.PathFlyer), render.FlyerHandler(a.renderer, opts))
		}
	}

	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": version,
	})
}

// trimAPI は /api グループ配下に登録するためにパスの接頭辞を外します。
func trimAPI(path string) string {
	return path[len("/api"):]
}

// dispatchTimeoutMargin はレンダラー側のタイムアウト応答を受け取るための猶予です。
const dispatchTimeoutMargin = 10 * time.Second

// dispatchTimeouts はジョブ種別ごとの待ち時間を返します。レンダラー自身のタイムアウトより長くします。
func dispatchTimeouts(cfg *config.Config) map[jobs.Kind]time.Duration {
	return map[jobs.Kind]time.Duration{
		jobs.KindImage: cfg.ImageRenderTimeout + dispatchTimeoutMargin,
		jobs.KindVideo: cfg.VideoRenderTimeout + dispatchTimeoutMargin,
		jobs.KindFlyer: cfg.ImageRenderTimeout + dispatchTimeoutMargin,
	}
}
