package auth

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
)

const (
	SessionCookieName = "listing_session"
	sessionKeyContext = "pinned_context"
	sessionKeyPinned  = "pinned_at"
)

var maxSessionLifetime = 12 * time.Hour

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// PinContext はブラウザが最後に操作したコンテキストをセッションに記録します。
func PinContext(c *gin.Context, id jobs.ContextID) error {
	session := sessions.Default(c)
	session.Set(sessionKeyContext, string(id))
	session.Set(sessionKeyPinned, time.Now().Unix())
	return session.Save()
}

// PinnedContext はセッションに記録されたコンテキストを返します。
// 記録がない場合や有効期限を過ぎている場合は空文字を返します。
func PinnedContext(c *gin.Context) jobs.ContextID {
	session := sessions.Default(c)
	id, ok := session.Get(sessionKeyContext).(string)
	if !ok || id == "" {
		return ""
	}
	pinned := readUnix(session.Get(sessionKeyPinned))
	if pinned.IsZero() || time.Since(pinned) > maxSessionLifetime {
		session.Delete(sessionKeyContext)
		session.Delete(sessionKeyPinned)
		_ = session.Save()
		return ""
	}
	return jobs.ContextID(id)
}

// ForgetContext は id が記録中のコンテキストであれば消去します。
func ForgetContext(c *gin.Context, id jobs.ContextID) {
	session := sessions.Default(c)
	if current, _ := session.Get(sessionKeyContext).(string); current != string(id) {
		return
	}
	session.Delete(sessionKeyContext)
	session.Delete(sessionKeyPinned)
	_ = session.Save()
}

func readUnix(v any) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
