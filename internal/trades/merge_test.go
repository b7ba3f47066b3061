package trades

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTrades_DedupByTx(t *testing.T) {
	existing := []TradeRow{
		{ID: 1, Time: 100, Address: "0xabc", Tx: "0xaaa", Size: 1, Px: 50000},
	}
	incoming := []TradeRow{
		// 同一 tx 但 id 不同，仍视为同一条
		{ID: 99, Time: 100, Address: "0xabc", Tx: "0xaaa", Size: 1, Px: 50000},
		{ID: 2, Time: 200, Address: "0xabc", Tx: "0xbbb", Size: 2, Px: 50100},
	}

	merged := MergeTrades(existing, incoming)
	require.Len(t, merged, 2)
	// existing 优先保留
	assert.Equal(t, int64(1), merged[1].ID)
	assert.Equal(t, int64(2), merged[0].ID)
}

func TestMergeTrades_KeyHierarchy(t *testing.T) {
	// tx 缺失时退化到 hash，再到 id，再到复合键
	a := TradeRow{Hash: "0xh1", Time: 1, Address: "0x1", Size: 1, Px: 10}
	b := TradeRow{Hash: "0xh1", ID: 7, Time: 1, Address: "0x1", Size: 1, Px: 10}
	merged := MergeTrades([]TradeRow{a}, []TradeRow{b})
	assert.Len(t, merged, 1)

	c := TradeRow{ID: 7, Time: 2, Address: "0x1", Size: 1, Px: 10}
	d := TradeRow{ID: 7, Time: 3, Address: "0x2", Size: 9, Px: 11}
	merged = MergeTrades([]TradeRow{c}, []TradeRow{d})
	assert.Len(t, merged, 1)

	// 全部缺失，仅当 (time,address,size,price) 相同才去重
	e := TradeRow{Time: 5, Address: "0x1", Size: 1, Px: 10}
	f := TradeRow{Time: 5, Address: "0x1", Size: 1, Px: 10}
	g := TradeRow{Time: 5, Address: "0x1", Size: 2, Px: 10}
	merged = MergeTrades([]TradeRow{e}, []TradeRow{f, g})
	assert.Len(t, merged, 2)
}

func TestMergeTrades_Idempotent(t *testing.T) {
	existing := []TradeRow{
		{ID: 1, Time: 100, Tx: "0xaaa"},
		{ID: 2, Time: 300, Tx: "0xbbb"},
	}
	incoming := []TradeRow{
		{ID: 3, Time: 200, Tx: "0xccc"},
		{ID: 2, Time: 300, Tx: "0xbbb"},
	}

	once := MergeTrades(existing, incoming)
	twice := MergeTrades(once, incoming)
	assert.Equal(t, once, twice)
}

func TestMergeTrades_SortDescByTimeThenID(t *testing.T) {
	merged := MergeTrades(nil, []TradeRow{
		{ID: 1, Time: 100, Tx: "a"},
		{ID: 3, Time: 200, Tx: "b"},
		{ID: 2, Time: 200, Tx: "c"},
		{ID: 4, Time: 50, Tx: "d"},
	})

	require.Len(t, merged, 4)
	assert.Equal(t, int64(3), merged[0].ID)
	assert.Equal(t, int64(2), merged[1].ID)
	assert.Equal(t, int64(1), merged[2].ID)
	assert.Equal(t, int64(4), merged[3].ID)
}

func TestCanLoadMore(t *testing.T) {
	state := &PagerState{}

	// 首次放行
	assert.True(t, CanLoadMore(state, time.Second))
	// 立即再次调用被限速
	assert.False(t, CanLoadMore(state, time.Second))

	// 模拟时间流逝
	state.LastLoadAt = time.Now().Add(-2 * time.Second)
	assert.True(t, CanLoadMore(state, time.Second))

	assert.False(t, CanLoadMore(nil, time.Second))
}
