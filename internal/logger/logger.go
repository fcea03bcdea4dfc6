// Package logger は zerolog ベースの構造化ロガーを提供します。
package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger はプロセス共通のロガーです。Init を呼ぶまでは標準エラー出力へ JSON で書き出します。
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init はログレベルと出力形式を設定します。
func Init(serviceName, level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
	Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithJobID はジョブIDを付与したロガーを返します。
func WithJobID(jobID string) *zerolog.Logger {
	l := Logger.With().Str("job_id", jobID).Logger()
	return &l
}

// WithContextID はコンテキスト（タブ）IDを付与したロガーを返します。
func WithContextID(contextID string) *zerolog.Logger {
	l := Logger.With().Str("context_id", contextID).Logger()
	return &l
}

// GinMiddleware はリクエストごとのアクセスログを出力するミドルウェアです。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := Logger.Info()
		if status >= 500 {
			evt = Logger.Error()
		} else if status >= 400 {
			evt = Logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
