package feed

import (
	"context"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// PositionUpdate 单地址单币种的仓位快照（推送或拉取）
type PositionUpdate struct {
	Address  string
	Coin     string
	Time     int64 // 毫秒时间戳
	Szi      float64
	EntryPx  *float64
	LiqPx    *float64
	Leverage *float64
	MarkPx   *float64
}

// Fill 单笔成交
type Fill struct {
	Address       string
	Coin          string
	Side          string // buy / sell
	Px            float64
	Sz            float64
	StartPosition float64
	Time          int64
	Dir           string
	ClosedPnl     *float64
	Fee           *float64
	FeeToken      string
	Hash          string
	Tid           int64
	Oid           int64
	Crossed       bool
}

// Handlers 上游事件回调，由调用方在 Start 前注入
type Handlers struct {
	OnPosition  func(PositionUpdate)
	OnFill      func(Fill)
	OnMarkPrice func(coin string, px float64)
}

// Feed 上游行情源。仓位通道全地址共享一条连接，
// 成交通道按地址独立连接（单个地址断流不影响其他地址）。
type Feed interface {
	// SetHandlers 注入回调，必须在 Start 前调用
	SetHandlers(h Handlers)

	Start(ctx context.Context) error
	Close() error

	SubscribePositions(address string) error
	UnsubscribePositions(address string) error
	SubscribeFills(address string) error
	UnsubscribeFills(address string) error

	// PullSnapshot 通过 HTTP 拉取权威仓位快照
	PullSnapshot(ctx context.Context, address string) (*PositionUpdate, error)
}
