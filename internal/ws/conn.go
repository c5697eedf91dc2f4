package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/auth"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/mw"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	sendBuffer   = 256
	maxFrameSize = 64 << 10
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Client is one live connection bound to an authenticated user.
type Client struct {
	id      string
	user    models.User
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func newClient(user models.User, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		user:    user,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
	}
}

func (c *Client) ID() string { return c.id }

// enqueue reports false only when the buffer is full.
func (c *Client) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendEvent writes ev to this connection only.
func (c *Client) sendEvent(ev service.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("encode reply")
		return
	}
	if !c.enqueue(b) {
		c.closeSend()
	}
}

// Serve 完成鉴权后升级为 WebSocket 连接。凭证无效时握手以 401 失败。
// 每个连接从 events 取得独立的入站事件令牌桶，断开时归还。
func Serve(hub *Hub, router *Router, resolver *auth.Resolver, env string, allowed []string, events *mw.Limiters) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(env, allowed),
	}
	return func(c *gin.Context) {
		user, err := resolver.Resolve(c.Request.Context(), auth.BearerToken(c.Request))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				log.Debug().Err(err).Msg("ws handshake rejected")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			log.Error().Err(err).Msg("ws handshake resolve user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(user, conn, nil)
		client.limiter = events.Get(client.id)
		defer events.Forget(client.id)
		hub.Bind(client)
		log.Info().Str("conn_id", client.id).Uint("user_id", user.ID).Str("role", string(user.Role)).Msg("ws connected")

		go client.writePump()
		client.readPump(router)
	}
}

func checkOrigin(env string, allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || env == "dev" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (c *Client) readPump(router *Router) {
	defer func() {
		router.Disconnect(c)
		_ = c.conn.Close()
		log.Info().Str("conn_id", c.id).Uint("user_id", c.user.ID).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		router.Handle(context.Background(), c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
