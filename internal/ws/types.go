package ws

import (
	"encoding/json"
	"sync"
)

// 对象池：复用 WsMessage 结构体
var msgPool = sync.Pool{
	New: func() any {
		return &WsMessage{}
	},
}

// Channel Hyperliquid WebSocket 频道
type Channel string

const (
	ChannelWebData2       Channel = "webData2"
	ChannelUserFills      Channel = "userFills"
	ChannelActiveAssetCtx Channel = "activeAssetCtx"
	ChannelAllMids        Channel = "allMids"
	ChannelPong           Channel = "pong"
	ChannelSubResponse    Channel = "subscriptionResponse"
)

// Subscription 订阅请求
type Subscription struct {
	Channel Channel `json:"type"`
	User    string  `json:"user,omitempty"`
	Coin    string  `json:"coin,omitempty"`
}

// Key 返回订阅的唯一键
func (s Subscription) Key() string {
	if s.User != "" {
		return string(s.Channel) + ":" + s.User
	}
	if s.Coin != "" {
		return string(s.Channel) + ":" + s.Coin
	}
	return string(s.Channel)
}

// WsMessage WebSocket 消息
type WsMessage struct {
	Channel Channel         `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Callback 消息回调函数
type Callback func(msg WsMessage) error
