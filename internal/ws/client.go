package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

const (
	writeWait      = 10 * time.Second // 写入超时
	pongWait       = 60 * time.Second // 读取超时（应大于心跳间隔）
	pingPeriod     = 50 * time.Second // 心跳间隔
	maxMessageSize = 1024 * 1024 * 2  // 最大消息限制 2MB
)

type Client struct {
	url     string
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// 状态控制
	done      chan struct{}
	closeOnce sync.Once

	// 回调
	onMessage    Callback
	onDisconnect func()
}

func NewClient(url string) *Client {
	if url == "" {
		panic("ws: URL cannot be empty")
	}
	return &Client{
		url:  url,
		done: make(chan struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil // 已经连接
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	// 处理标准 Pong 帧（如果服务器发送标准控制帧）
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// 监控 Context 和 done 信号，主动关闭连接解除 ReadMessage 阻塞
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.internalClose()
	}()

	go c.readPump()
	go c.pingPump()

	return nil
}

// internalClose 内部关闭方法，不触发通知逻辑
func (c *Client) internalClose() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.internalClose()
	})
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) readPump() {
	defer func() {
		c.internalClose()
		c.notifyDisconnect()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Msg("ws read error")
			}
			return
		}

		// 每次读取成功，刷新 ReadDeadline
		conn.SetReadDeadline(time.Now().Add(pongWait))

		wsMsg := msgPool.Get().(*WsMessage)

		if err = json.Unmarshal(msg, wsMsg); err != nil {
			logger.Warn().Err(err).Msg("unmarshal ws message error")
			wsMsg.Data = nil
			wsMsg.Channel = ""
			msgPool.Put(wsMsg)
			continue
		}

		if c.onMessage != nil {
			if err = c.onMessage(*wsMsg); err != nil {
				logger.Error().Err(err).Msg("onMessage callback error")
			}
		}

		// 放回池中（Data 引用的字节数组会被下次读取覆盖，清空指针即可）
		wsMsg.Data = nil
		wsMsg.Channel = ""
		msgPool.Put(wsMsg)
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

func (c *Client) Ping() error {
	// 同时发送应用层 Ping 和标准的控制帧 Ping
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return err
	}

	return conn.WriteJSON(map[string]string{"method": "ping"})
}

func (c *Client) Subscribe(sub Subscription) error {
	return c.writeJSONWithDeadline(map[string]any{
		"method":       "subscribe",
		"subscription": sub,
	})
}

func (c *Client) Unsubscribe(sub Subscription) error {
	return c.writeJSONWithDeadline(map[string]any{
		"method":       "unsubscribe",
		"subscription": sub,
	})
}

func (c *Client) writeJSONWithDeadline(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) notifyDisconnect() {
	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (c *Client) SetMessageHandler(handler Callback) {
	c.onMessage = handler
}

func (c *Client) SetDisconnectCallback(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = callback
}
