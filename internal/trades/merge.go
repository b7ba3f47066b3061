package trades

import (
	"fmt"
	"sort"
)

// TradeRow 成交记录的持久化/分页视图
type TradeRow struct {
	ID            int64    `json:"id"`
	Time          int64    `json:"time"` // unix 毫秒
	Address       string   `json:"address"`
	Action        string   `json:"action"`
	Size          float64  `json:"size"`
	StartPosition float64  `json:"startPosition"`
	Px            float64  `json:"px"`
	ClosedPnl     *float64 `json:"closedPnl,omitempty"`
	Tx            string   `json:"tx,omitempty"`
	Hash          string   `json:"hash,omitempty"`
}

// dedupKey 分层身份键。上游各通道对字段的填充不一致，
// 优先级: tx > hash > id > (time, address, size, price)
func dedupKey(t TradeRow) string {
	if t.Tx != "" {
		return "tx:" + t.Tx
	}
	if t.Hash != "" {
		return "hash:" + t.Hash
	}
	if t.ID != 0 {
		return fmt.Sprintf("id:%d", t.ID)
	}
	return fmt.Sprintf("c:%d-%s-%v-%v", t.Time, t.Address, t.Size, t.Px)
}

// MergeTrades 合并两组按时间排序的成交记录，按分层身份键去重。
// existing 中的记录优先保留，结果按 (time, id) 降序。幂等：
// 对同一 incoming 重复合并结果不变。
func MergeTrades(existing, incoming []TradeRow) []TradeRow {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]TradeRow, 0, len(existing)+len(incoming))

	for _, t := range existing {
		key := dedupKey(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, t)
	}

	for _, t := range incoming {
		key := dedupKey(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, t)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Time != merged[j].Time {
			return merged[i].Time > merged[j].Time
		}
		return merged[i].ID > merged[j].ID
	})

	return merged
}
