package trades

import (
	"time"
)

// Cursor 时间分页游标，指向下一页的起点
type Cursor struct {
	BeforeAt int64 `json:"beforeAt"`
	BeforeID int64 `json:"beforeId"`
}

// Page 分页响应
type Page struct {
	Trades     []TradeRow `json:"trades"`
	NextCursor *Cursor    `json:"nextCursor"`
}

// PagerState 客户端翻页的限速状态
type PagerState struct {
	LastLoadAt time.Time

	// now 可在测试中替换
	now func() time.Time
}

// CanLoadMore 翻页限速。距离上次放行不足 minInterval 时返回 false，
// 放行时记录当前时间。首次调用总是放行。
func CanLoadMore(state *PagerState, minInterval time.Duration) bool {
	if state == nil {
		return false
	}

	nowFn := state.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	if !state.LastLoadAt.IsZero() && now.Sub(state.LastLoadAt) < minInterval {
		return false
	}

	state.LastLoadAt = now
	return true
}
