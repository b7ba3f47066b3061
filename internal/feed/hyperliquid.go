package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-hl-tracker/internal/ws"
	"github.com/utrading/utrading-hl-tracker/pkg/concurrent"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	snapshotTimeout    = 10 * time.Second
)

// HyperliquidFeed Feed 的 Hyperliquid 实现。
// 仓位与标记价走共享连接，成交按地址独立连接。
type HyperliquidFeed struct {
	wsURL    string
	apiURL   string
	coin     string
	handlers Handlers

	httpClient *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	posClient *ws.Client
	posSubs   map[string]struct{}

	fillClients concurrent.Map[string, *ws.Client]

	closeOnce sync.Once
}

var _ Feed = (*HyperliquidFeed)(nil)

func NewHyperliquidFeed(wsURL, apiURL, coin string) *HyperliquidFeed {
	return &HyperliquidFeed{
		wsURL:  wsURL,
		apiURL: apiURL,
		coin:   coin,
		httpClient: &http.Client{
			Timeout: snapshotTimeout,
		},
		posSubs: make(map[string]struct{}),
	}
}

// SetHandlers 注入回调，必须在 Start 前调用
func (f *HyperliquidFeed) SetHandlers(h Handlers) {
	f.handlers = h
}

// Start 建立共享仓位连接并订阅标记价
func (f *HyperliquidFeed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	client, err := f.dialPositionClient()
	if err != nil {
		return fmt.Errorf("connect position feed: %w", err)
	}

	f.mu.Lock()
	f.posClient = client
	f.mu.Unlock()

	if err = client.Subscribe(ws.Subscription{
		Channel: ws.ChannelActiveAssetCtx,
		Coin:    f.coin,
	}); err != nil {
		return fmt.Errorf("subscribe asset ctx: %w", err)
	}

	logger.Info().Str("url", f.wsURL).Str("coin", f.coin).Msg("position feed connected")
	return nil
}

func (f *HyperliquidFeed) Close() error {
	f.closeOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}

		f.mu.Lock()
		if f.posClient != nil {
			f.posClient.Close()
			f.posClient = nil
		}
		f.mu.Unlock()

		f.fillClients.Range(func(addr string, c *ws.Client) bool {
			c.Close()
			return true
		})
		f.fillClients.Clear()
	})
	return nil
}

// IsConnected 共享仓位连接是否在线
func (f *HyperliquidFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.posClient != nil && f.posClient.IsConnected()
}

// SubscribePositions 在共享连接上订阅某地址的仓位推送
func (f *HyperliquidFeed) SubscribePositions(address string) error {
	address = strings.ToLower(address)

	f.mu.Lock()
	client := f.posClient
	f.posSubs[address] = struct{}{}
	f.mu.Unlock()

	if client == nil {
		return fmt.Errorf("position feed not connected")
	}
	return client.Subscribe(ws.Subscription{
		Channel: ws.ChannelWebData2,
		User:    address,
	})
}

func (f *HyperliquidFeed) UnsubscribePositions(address string) error {
	address = strings.ToLower(address)

	f.mu.Lock()
	client := f.posClient
	delete(f.posSubs, address)
	f.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Unsubscribe(ws.Subscription{
		Channel: ws.ChannelWebData2,
		User:    address,
	})
}

// SubscribeFills 为地址建立独立成交连接。单地址断流只影响自身。
func (f *HyperliquidFeed) SubscribeFills(address string) error {
	address = strings.ToLower(address)

	if _, ok := f.fillClients.Load(address); ok {
		return nil
	}

	client, err := f.dialFillClient(address)
	if err != nil {
		return fmt.Errorf("connect fill feed for %s: %w", address, err)
	}

	if _, loaded := f.fillClients.LoadOrStore(address, client); loaded {
		// 并发竞态：另一条连接已经建立
		client.Close()
		return nil
	}

	logger.Info().Str("address", address).Msg("fill feed connected")
	return nil
}

func (f *HyperliquidFeed) UnsubscribeFills(address string) error {
	address = strings.ToLower(address)

	if client, ok := f.fillClients.LoadAndDelete(address); ok {
		return client.Close()
	}
	return nil
}

// PullSnapshot 通过 HTTP /info 接口拉取权威仓位快照
func (f *HyperliquidFeed) PullSnapshot(ctx context.Context, address string) (*PositionUpdate, error) {
	address = strings.ToLower(address)

	body, err := json.Marshal(map[string]string{
		"type": "clearinghouseState",
		"user": address,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.apiURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pull snapshot: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	update := parseClearinghouseState(address, f.coin, gjson.ParseBytes(raw))
	if update.Time == 0 {
		update.Time = time.Now().UnixMilli()
	}
	return &update, nil
}

// dialPositionClient 建立共享仓位连接并挂接消息与重连回调
func (f *HyperliquidFeed) dialPositionClient() (*ws.Client, error) {
	client := ws.NewClient(f.wsURL)
	client.SetMessageHandler(f.handlePositionMessage)
	client.SetDisconnectCallback(func() {
		goplus.Go(f.reconnectPositions)
	})

	if err := client.Connect(f.ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (f *HyperliquidFeed) handlePositionMessage(msg ws.WsMessage) error {
	switch msg.Channel {
	case ws.ChannelWebData2:
		update, ok := parseWebData2("", f.coin, msg.Data)
		if ok && f.handlers.OnPosition != nil {
			f.handlers.OnPosition(update)
		}
	case ws.ChannelActiveAssetCtx:
		coin, px, ok := parseActiveAssetCtx(msg.Data)
		if ok && f.handlers.OnMarkPrice != nil {
			f.handlers.OnMarkPrice(coin, px)
		}
	case ws.ChannelPong, ws.ChannelSubResponse:
		// 控制消息，忽略
	}
	return nil
}

// reconnectPositions 指数退避重连共享连接，成功后恢复全部订阅
func (f *HyperliquidFeed) reconnectPositions() {
	delay := reconnectBaseDelay

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(delay):
		}

		client, err := f.dialPositionClient()
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("position feed reconnect failed")
			delay = minDuration(delay*2, reconnectMaxDelay)
			continue
		}

		f.mu.Lock()
		old := f.posClient
		f.posClient = client
		subs := make([]string, 0, len(f.posSubs))
		for addr := range f.posSubs {
			subs = append(subs, addr)
		}
		f.mu.Unlock()

		if old != nil {
			old.Close()
		}

		client.Subscribe(ws.Subscription{Channel: ws.ChannelActiveAssetCtx, Coin: f.coin})
		for _, addr := range subs {
			if err = client.Subscribe(ws.Subscription{Channel: ws.ChannelWebData2, User: addr}); err != nil {
				logger.Error().Err(err).Str("address", addr).Msg("resubscribe positions failed")
			}
		}

		logger.Info().Int("subs", len(subs)).Msg("position feed reconnected")
		return
	}
}

// dialFillClient 建立单地址成交连接
func (f *HyperliquidFeed) dialFillClient(address string) (*ws.Client, error) {
	client := ws.NewClient(f.wsURL)
	client.SetMessageHandler(func(msg ws.WsMessage) error {
		return f.handleFillMessage(address, msg)
	})
	client.SetDisconnectCallback(func() {
		goplus.Go(func() { f.reconnectFills(address) })
	})

	if err := client.Connect(f.ctx); err != nil {
		return nil, err
	}

	if err := client.Subscribe(ws.Subscription{
		Channel: ws.ChannelUserFills,
		User:    address,
	}); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (f *HyperliquidFeed) handleFillMessage(address string, msg ws.WsMessage) error {
	if msg.Channel != ws.ChannelUserFills {
		return nil
	}

	addr, fills, isSnapshot := parseUserFills(f.coin, msg.Data)
	if addr == "" {
		addr = address
	}
	if isSnapshot {
		logger.Debug().Str("address", addr).Int("count", len(fills)).Msg("fill snapshot replay")
	}

	if f.handlers.OnFill != nil {
		for i := range fills {
			fills[i].Address = addr
			f.handlers.OnFill(fills[i])
		}
	}
	return nil
}

// reconnectFills 指数退避重连单地址成交连接。
// 地址在此期间被取消跟踪时放弃重连。
func (f *HyperliquidFeed) reconnectFills(address string) {
	if _, ok := f.fillClients.Load(address); !ok {
		return // 已取消跟踪
	}

	delay := reconnectBaseDelay

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(delay):
		}

		if _, ok := f.fillClients.Load(address); !ok {
			return
		}

		client, err := f.dialFillClient(address)
		if err != nil {
			logger.Warn().Err(err).Str("address", address).Dur("retry_in", delay).
				Msg("fill feed reconnect failed")
			delay = minDuration(delay*2, reconnectMaxDelay)
			continue
		}

		if old, ok := f.fillClients.Load(address); ok {
			old.Close()
		}
		f.fillClients.Store(address, client)

		logger.Info().Str("address", address).Msg("fill feed reconnected")
		return
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
