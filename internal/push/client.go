package push

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

const (
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 90 * time.Second
	clientSendBuffer = 32
	clientMaxMsgSize = 4096
)

// Client 单个消费者连接。游标私有，只被广播循环推进
// 或在补齐/清库时显式改写。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Frame

	mu     sync.Mutex
	cursor uint64
	closed bool

	alive atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn, cursor uint64) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan Frame, clientSendBuffer),
		cursor: cursor,
	}
	c.alive.Store(true)
	return c
}

// Cursor 当前读取位置
func (c *Client) Cursor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Client) setCursor(seq uint64) {
	c.mu.Lock()
	c.cursor = seq
	c.mu.Unlock()
}

// enqueue 投递一帧，连接已关闭时返回 false。
// 入队和 close 在同一把锁下互斥，send 通道不会在发送中途被关。
// 缓冲打满说明消费者跟不上，直接丢弃连接。
func (c *Client) enqueue(f Frame) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	select {
	case c.send <- f:
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		logger.Warn().Str("remote", c.conn.RemoteAddr().String()).
			Msg("push client send buffer full, dropping")
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.send)
	c.conn.Close()
}

// readPump 读取上行请求，处理补齐与 pong
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(clientMaxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("push client read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		c.alive.Store(true)

		var req request
		if err = json.Unmarshal(msg, &req); err != nil {
			logger.Debug().Err(err).Msg("malformed push client request")
			continue
		}

		if req.Kind == requestCatchup {
			c.hub.serveCatchup(c, req.Since)
		}
	}
}

// writePump 顺序写出队列中的帧，心跳探测也从这里发，
// 避免对同一连接并发写。
func (c *Client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
