package push

import (
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
)

// 下行帧类型
const (
	FrameHello  = "hello"  // 连接建立，携带当前最新序列号
	FrameBatch  = "batch"  // 补齐请求的应答
	FrameEvents = "events" // 稳态增量推送
)

// 上行请求类型
const requestCatchup = "catchup"

// Frame 下行推送帧
type Frame struct {
	Kind      string                 `json:"kind"`
	LatestSeq uint64                 `json:"latestSeq,omitempty"`
	Events    []eventlog.ChangeEvent `json:"events,omitempty"`
}

// request 消费者上行请求
type request struct {
	Kind  string `json:"kind"`
	Since uint64 `json:"since"`
}
