package eventlog

// 事件类型
const (
	KindPosition = "position"
	KindTrade    = "trade"
)

// 仓位方向
const (
	SideLong  = "long"
	SideShort = "short"
	SideFlat  = "flat"
)

// 成交方向与效果
const (
	TradeBuy    = "buy"
	TradeSell   = "sell"
	EffectOpen  = "open"
	EffectClose = "close"
)

// 动作标签，由 (起始仓位符号, 增量符号, 是否归零) 决定
const (
	ActionOpenLong      = "Open Long"
	ActionOpenShort     = "Open Short"
	ActionIncreaseLong  = "Increase Long"
	ActionIncreaseShort = "Increase Short"
	ActionDecreaseLong  = "Decrease Long"
	ActionDecreaseShort = "Decrease Short"
	ActionCloseLong     = "Close Long"
	ActionCloseShort    = "Close Short"
)

// ChangeEvent 事件日志的基本单元，按 Kind 区分仓位变更和成交两种形态。
// Seq 在 Append 时分配，之后不可变。
type ChangeEvent struct {
	Seq     uint64 `json:"seq"`
	Kind    string `json:"kind"`
	Time    int64  `json:"time"` // unix 毫秒
	Address string `json:"address"`
	Symbol  string `json:"symbol"`

	// 仓位事件字段
	Size          float64  `json:"size"`           // 有符号仓位 / 成交绝对数量
	Side          string   `json:"side,omitempty"` // 仓位: long/short/flat；成交: buy/sell
	EntryPx       *float64 `json:"entryPx,omitempty"`
	LiqPx         *float64 `json:"liqPx,omitempty"`
	Leverage      *float64 `json:"leverage,omitempty"`
	UnrealizedPnl *float64 `json:"unrealizedPnl,omitempty"`

	// 成交事件字段
	Direction     string   `json:"direction,omitempty"` // long/short
	Effect        string   `json:"effect,omitempty"`    // open/close
	Px            float64  `json:"px,omitempty"`
	ClosedPnl     *float64 `json:"closedPnl,omitempty"`
	StartPosition *float64 `json:"startPosition,omitempty"`
	Fee           *float64 `json:"fee,omitempty"`
	FeeToken      string   `json:"feeToken,omitempty"`
	Hash          string   `json:"hash,omitempty"` // L1 交易哈希
	Action        string   `json:"action,omitempty"`
	TradeID       int64    `json:"tradeId,omitempty"` // 持久化存储主键
}
