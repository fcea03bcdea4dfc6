// Package websocket はジョブ更新をブラウザへ配信する WebSocket ハブです。
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type message struct {
	context jobs.ContextID
	data    []byte
}

// Hub は接続中のクライアントを管理し、ジョブイベントを配信します。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
}

// NewHub は Hub を作成します。Run を呼ぶまで配信は行われません。
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run はコンテキストが終了するまでハブのイベントループを回します。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.context != "" && c.context != msg.context {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// 受信が追いつかないクライアントは切断する
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Notify は jobs.Notifier を実装します。キューが詰まっている場合は破棄します。
func (h *Hub) Notify(_ context.Context, evt jobs.Event) {
	data, err := json.Marshal(map[string]any{
		"type": "job_update",
		"data": evt,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to marshal job update")
		return
	}
	select {
	case h.broadcast <- message{context: evt.Job.Context, data: data}:
	default:
		logger.WithJobID(evt.Job.JobID).Warn().Msg("websocket broadcast queue full, dropping event")
	}
}

// Client はハブに登録された1つの接続です。
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	context jobs.ContextID
}

// readPump は切断検知のために受信を続けます。クライアントからのメッセージは読み捨てます。
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
