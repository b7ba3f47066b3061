package push

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/monitor"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Options 推送层参数
type Options struct {
	CatchupLimit      int           // 单次补齐上限
	BatchLimit        int           // 稳态单拍单连接上限
	MinInterval       time.Duration // 连接多时的最短广播间隔
	MaxInterval       time.Duration // 连接少时的最长广播间隔
	HeartbeatInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.CatchupLimit <= 0 {
		o.CatchupLimit = 500
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 200
	}
	if o.MinInterval <= 0 {
		o.MinInterval = 250 * time.Millisecond
	}
	if o.MaxInterval < o.MinInterval {
		o.MaxInterval = 2 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
}

// Hub 推送分发器：每个连接持有一个私有游标，
// 广播循环按自适应节奏把游标之后的事件推给各自的消费者。
type Hub struct {
	log  *eventlog.Log
	opts Options

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(log *eventlog.Log, opts Options) *Hub {
	opts.withDefaults()
	return &Hub{
		log:  log,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
}

// Run 启动广播与心跳循环，ctx 取消后关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	goplus.Go(func() { h.broadcastLoop(ctx) })
	goplus.Go(func() { h.heartbeatLoop(ctx) })
}

// ServeWS 升级连接。可选 since 参数设定初始游标，
// 默认 0 即只接收会话期间的新事件。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	cursor := cast.ToUint64(r.URL.Query().Get("since"))
	client := newClient(h, conn, cursor)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	monitor.GetMetrics().SetPushClients(count)

	client.enqueue(Frame{Kind: FrameHello, LatestSeq: h.log.LatestSeq()})
	monitor.GetMetrics().IncPushFramesSent(FrameHello)

	goplus.Go(client.readPump)
	goplus.Go(func() { client.writePump(h.opts.HeartbeatInterval) })

	logger.Info().Str("remote", conn.RemoteAddr().String()).
		Int("clients", count).Msg("push client connected")
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyReset 清库后把所有游标回拨到 0 并重新下发 hello，
// 消费者不会拿旧游标读新的序列空间。
func (h *Hub) NotifyReset() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	latest := h.log.LatestSeq()
	for _, c := range clients {
		c.setCursor(0)
		c.enqueue(Frame{Kind: FrameHello, LatestSeq: latest})
	}

	logger.Info().Int("clients", len(clients)).Msg("push cursors rewound after wipe")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	monitor.GetMetrics().SetPushClients(count)
}

// serveCatchup 应答补齐请求：从 since 之后最多发 CatchupLimit 条，
// 游标推进到实际发出的最后一条。
func (h *Hub) serveCatchup(c *Client, since uint64) {
	events := h.log.ListSince(since, h.opts.CatchupLimit)

	cursor := since
	if n := len(events); n > 0 {
		cursor = events[n-1].Seq
	}
	c.setCursor(cursor)
	c.enqueue(Frame{Kind: FrameBatch, Events: events})
	monitor.GetMetrics().IncPushFramesSent(FrameBatch)
}

// broadcastLoop 稳态广播。间隔随连接数自适应：
// 连接越多节拍越短，用吞吐换扇出延迟。
func (h *Hub) broadcastLoop(ctx context.Context) {
	timer := time.NewTimer(h.tickInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-timer.C:
			h.broadcast()
			timer.Reset(h.tickInterval())
		}
	}
}

// broadcast 给每个连接推送其游标之后的事件，无新事件不发空帧
func (h *Hub) broadcast() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		events := h.log.ListSince(c.Cursor(), h.opts.BatchLimit)
		if len(events) == 0 {
			continue
		}
		if c.enqueue(Frame{Kind: FrameEvents, Events: events}) {
			c.setCursor(events[len(events)-1].Seq)
			monitor.GetMetrics().IncPushFramesSent(FrameEvents)
		}
	}
	monitor.GetMetrics().SetEventLogSize(h.log.Len())
}

// tickInterval 连接数 0 时取最长间隔，20 及以上取最短，中间线性插值
func (h *Hub) tickInterval() time.Duration {
	n := h.ClientCount()
	switch {
	case n == 0:
		return h.opts.MaxInterval
	case n >= 20:
		return h.opts.MinInterval
	default:
		span := h.opts.MaxInterval - h.opts.MinInterval
		return h.opts.MaxInterval - span*time.Duration(n)/20
	}
}

// heartbeatLoop 周期检查存活标记。上一轮探测后没有任何
// pong 或上行消息的连接被强制剔除。
func (h *Hub) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				if !c.alive.Swap(false) {
					logger.Info().Str("remote", c.conn.RemoteAddr().String()).
						Msg("push client missed heartbeat, dropping")
					h.unregister(c)
					c.close()
				}
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
