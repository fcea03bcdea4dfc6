package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 拡張機能のオリジン（chrome-extension://...）からも接続されるため、オリジンは CORS 設定側で制御する
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler は GET /ws のハンドラーを返します。?context= を指定するとそのコンテキストのイベントだけを受け取ります。
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("websocket upgrade error")
			return
		}

		client := &Client{
			hub:     hub,
			conn:    conn,
			send:    make(chan []byte, sendBuffer),
			context: jobs.ContextID(c.Query("context")),
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
