package tracker

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
)

func newFillProcessor(store Store) (*FillProcessor, *eventlog.Log) {
	log := eventlog.NewLog(1000)
	dedup := cache.NewDedupCache(time.Minute)
	return NewFillProcessor("BTC", "BTCUSD-PERP", log, store, dedup, nil, nil), log
}

func mkFill(start, sz float64, side string, tid int64) feed.Fill {
	return feed.Fill{
		Address:       "0xAbc",
		Coin:          "BTC",
		Side:          side,
		Px:            64000,
		Sz:            sz,
		StartPosition: start,
		Time:          1756200001000,
		Hash:          "",
		Tid:           tid,
	}
}

func TestFillProcessor_OpenLongFromFlat(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	ok := p.Process(mkFill(0, 0.5, feed.SideBuy, 1))
	require.True(t, ok)

	evs := log.ListSince(0, 10)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, eventlog.KindTrade, ev.Kind)
	assert.Equal(t, eventlog.ActionOpenLong, ev.Action)
	assert.Equal(t, eventlog.EffectOpen, ev.Effect)
	assert.Equal(t, eventlog.SideLong, ev.Direction)
	assert.Equal(t, "0xabc", ev.Address)
	assert.Equal(t, eventlog.TradeBuy, ev.Side)
	assert.Equal(t, 0.5, ev.Size)
	assert.NotZero(t, ev.TradeID)
}

func TestFillProcessor_OpenShortFromFlat(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	require.True(t, p.Process(mkFill(0, 1.0, feed.SideSell, 2)))

	ev := log.ListSince(0, 10)[0]
	assert.Equal(t, eventlog.ActionOpenShort, ev.Action)
	assert.Equal(t, eventlog.EffectOpen, ev.Effect)
	assert.Equal(t, eventlog.SideShort, ev.Direction)
}

func TestFillProcessor_IncreaseLong(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	require.True(t, p.Process(mkFill(1.0, 0.5, feed.SideBuy, 3)))

	ev := log.ListSince(0, 10)[0]
	assert.Equal(t, eventlog.ActionIncreaseLong, ev.Action)
	assert.Equal(t, eventlog.EffectOpen, ev.Effect)
	assert.Equal(t, eventlog.SideLong, ev.Direction)
}

func TestFillProcessor_DecreaseLong(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	require.True(t, p.Process(mkFill(2.0, 1.0, feed.SideSell, 4)))

	ev := log.ListSince(0, 10)[0]
	assert.Equal(t, eventlog.ActionDecreaseLong, ev.Action)
	assert.Equal(t, eventlog.EffectClose, ev.Effect)
	assert.Equal(t, eventlog.SideLong, ev.Direction)
}

func TestFillProcessor_CloseLongExactZero(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	// 多头 5 张全部卖出：归零走 Close，方向回退到本笔增量的符号
	require.True(t, p.Process(mkFill(5.0, 5.0, feed.SideSell, 5)))

	ev := log.ListSince(0, 10)[0]
	assert.Equal(t, eventlog.ActionCloseLong, ev.Action)
	assert.Equal(t, eventlog.EffectClose, ev.Effect)
	assert.Equal(t, eventlog.SideShort, ev.Direction)
}

func TestFillProcessor_FlipKeepsDecreaseLabel(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	// 多头 1 张卖出 2 张翻成空头：幅度不变按 close 处理，标签仍是 Decrease Long
	require.True(t, p.Process(mkFill(1.0, 2.0, feed.SideSell, 6)))

	ev := log.ListSince(0, 10)[0]
	assert.Equal(t, eventlog.ActionDecreaseLong, ev.Action)
	assert.Equal(t, eventlog.EffectClose, ev.Effect)
	assert.Equal(t, eventlog.SideShort, ev.Direction)
}

func TestFillProcessor_ShortSideSymmetry(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	require.True(t, p.Process(mkFill(-1.0, 0.5, feed.SideSell, 7)))
	require.True(t, p.Process(mkFill(-1.5, 0.5, feed.SideBuy, 8)))
	require.True(t, p.Process(mkFill(-1.0, 1.0, feed.SideBuy, 9)))

	evs := log.ListSince(0, 10)
	require.Len(t, evs, 3)
	assert.Equal(t, eventlog.ActionIncreaseShort, evs[0].Action)
	assert.Equal(t, eventlog.EffectOpen, evs[0].Effect)
	assert.Equal(t, eventlog.ActionDecreaseShort, evs[1].Action)
	assert.Equal(t, eventlog.EffectClose, evs[1].Effect)
	assert.Equal(t, eventlog.ActionCloseShort, evs[2].Action)
	assert.Equal(t, eventlog.EffectClose, evs[2].Effect)
	// 归零回退到增量符号：买入为 long
	assert.Equal(t, eventlog.SideLong, evs[2].Direction)
}

func TestFillProcessor_SkipsOtherCoin(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	f := mkFill(0, 1.0, feed.SideBuy, 10)
	f.Coin = "ETH"
	assert.False(t, p.Process(f))
	assert.Equal(t, 0, log.Len())
}

func TestFillProcessor_SkipsNonFinite(t *testing.T) {
	p, log := newFillProcessor(newFakeStore())

	f := mkFill(0, 1.0, feed.SideBuy, 11)
	f.Px = math.NaN()
	assert.False(t, p.Process(f))

	f = mkFill(0, 1.0, feed.SideBuy, 12)
	f.StartPosition = math.Inf(1)
	assert.False(t, p.Process(f))

	assert.Equal(t, 0, log.Len())
}

func TestFillProcessor_DuplicateNotReappended(t *testing.T) {
	store := newFakeStore()
	p, log := newFillProcessor(store)

	// tid 缺失时绕过热路径缓存，靠存储身份键挡住重复
	f := mkFill(0, 0.5, feed.SideBuy, 0)
	f.Hash = "0xdeadbeef"

	require.True(t, p.Process(f))
	assert.False(t, p.Process(f))
	assert.Equal(t, 1, log.Len())
}

func TestFillProcessor_DedupCacheShortCircuit(t *testing.T) {
	store := newFakeStore()
	p, log := newFillProcessor(store)

	f := mkFill(0, 0.5, feed.SideBuy, 14)
	require.True(t, p.Process(f))

	// 第二次连存储都不会碰
	before := len(store.trades)
	assert.False(t, p.Process(f))
	assert.Equal(t, before, len(store.trades))
	assert.Equal(t, 1, log.Len())
}

func TestFillProcessor_StoreErrorStillAppends(t *testing.T) {
	store := newFakeStore()
	store.tradeErr = errors.New("db down")
	p, log := newFillProcessor(store)

	// 落库失败吞掉，实时事件照常产生，但没有存储主键
	require.True(t, p.Process(mkFill(0, 0.5, feed.SideBuy, 15)))

	ev := log.ListSince(0, 10)[0]
	assert.Zero(t, ev.TradeID)
}
