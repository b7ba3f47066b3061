package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/models"
)

func newTracker(f feed.Feed, store Store) *Tracker {
	log := eventlog.NewLog(1000)
	prices := cache.NewPriceCache()
	dedup := cache.NewDedupCache(time.Minute)
	reconciler := NewReconciler("BTC", "BTCUSD-PERP", log, store, prices, nil, nil)
	fills := NewFillProcessor("BTC", "BTCUSD-PERP", log, store, dedup, nil, nil)

	return New(f, log, reconciler, fills, prices, Options{
		Coin:             "BTC",
		Symbol:           "BTCUSD-PERP",
		PrimeMinInterval: 15 * time.Second,
		SnapshotMaxAge:   5 * time.Minute,
	})
}

func TestTracker_RefreshSubscribesAndPrimes(t *testing.T) {
	f := newFakeFeed()
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	tr.Refresh([]string{"0xAAA", "0xBBB"})

	pos, fill := f.subscribed("0xaaa")
	assert.True(t, pos)
	assert.True(t, fill)
	assert.Equal(t, 2, tr.TrackedCount())

	// 新增地址异步触发强制校准
	require.Eventually(t, func() bool {
		return f.pullCount("0xaaa") == 1 && f.pullCount("0xbbb") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := tr.reconciler.Get("0xaaa")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_RefreshRemovesAndDropsState(t *testing.T) {
	f := newFakeFeed()
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	tr.Refresh([]string{"0xaaa", "0xbbb"})
	require.Eventually(t, func() bool {
		_, ok := tr.reconciler.Get("0xbbb")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	tr.Refresh([]string{"0xaaa"})

	pos, fill := f.subscribed("0xbbb")
	assert.False(t, pos)
	assert.False(t, fill)
	_, ok := tr.reconciler.Get("0xbbb")
	assert.False(t, ok)
	assert.Equal(t, 1, tr.TrackedCount())
}

func TestTracker_PrimeCoalescing(t *testing.T) {
	f := newFakeFeed()
	f.pullDelay = 100 * time.Millisecond
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.PrimeFromHTTP("0xaaa", true)
		}(i)
	}
	wg.Wait()

	// 并发调用合并为一次拉取，两个调用方看到同一个结果
	assert.Equal(t, 1, f.pullCount("0xaaa"))
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestTracker_PrimeMinInterval(t *testing.T) {
	f := newFakeFeed()
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	base := time.Now()
	tr.now = func() time.Time { return base }

	require.NoError(t, tr.PrimeFromHTTP("0xaaa", true))
	assert.Equal(t, 1, f.pullCount("0xaaa"))

	// 间隔未到：非强制调用是空操作
	require.NoError(t, tr.PrimeFromHTTP("0xaaa", false))
	assert.Equal(t, 1, f.pullCount("0xaaa"))

	// 强制调用不受间隔限制
	require.NoError(t, tr.PrimeFromHTTP("0xaaa", true))
	assert.Equal(t, 2, f.pullCount("0xaaa"))

	// 间隔已过：非强制调用重新放行
	tr.now = func() time.Time { return base.Add(16 * time.Second) }
	require.NoError(t, tr.PrimeFromHTTP("0xaaa", false))
	assert.Equal(t, 3, f.pullCount("0xaaa"))
}

func TestTracker_PrimeRecordsAttemptOnFailure(t *testing.T) {
	f := newFakeFeed()
	f.pullErr = context.DeadlineExceeded
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	base := time.Now()
	tr.now = func() time.Time { return base }

	// 失败也记录尝试时间，间隔内的非强制重试被压制
	require.Error(t, tr.PrimeFromHTTP("0xaaa", true))
	require.NoError(t, tr.PrimeFromHTTP("0xaaa", false))
	assert.Equal(t, 1, f.pullCount("0xaaa"))
}

func TestTracker_EnsureFreshSnapshots(t *testing.T) {
	f := newFakeFeed()
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	tr.Refresh([]string{"0xaaa", "0xbbb"})
	require.Eventually(t, func() bool {
		_, okA := tr.reconciler.Get("0xaaa")
		_, okB := tr.reconciler.Get("0xbbb")
		return okA && okB
	}, 2*time.Second, 10*time.Millisecond)

	beforeA, beforeB := f.pullCount("0xaaa"), f.pullCount("0xbbb")

	// 0xbbb 的快照做旧
	snap, _ := tr.reconciler.Get("0xbbb")
	snap.UpdatedAt = time.Now().Add(-time.Hour).UnixMilli()
	tr.reconciler.mu.Lock()
	tr.reconciler.snapshots["0xbbb"] = snap
	tr.reconciler.mu.Unlock()

	tr.EnsureFreshSnapshots(5 * time.Minute)

	assert.Equal(t, beforeA, f.pullCount("0xaaa"))
	assert.Equal(t, beforeB+1, f.pullCount("0xbbb"))
}

func TestTracker_FillTriggersRateLimitedPrime(t *testing.T) {
	f := newFakeFeed()
	tr := newTracker(f, newFakeStore())
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	tr.handleFill(feed.Fill{
		Address:       "0xccc",
		Coin:          "BTC",
		Side:          feed.SideBuy,
		Px:            64000,
		Sz:            0.5,
		StartPosition: 0,
		Time:          time.Now().UnixMilli(),
		Tid:           42,
	})

	require.Eventually(t, func() bool {
		return f.pullCount("0xccc") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_Wipe(t *testing.T) {
	f := newFakeFeed()
	store := newFakeStore()
	tr := newTracker(f, store)
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	var rewound bool
	tr.SetWipeCallback(func() { rewound = true })

	store.trades["k1"] = 1
	store.trades["k2"] = 2
	tr.log.Append(eventlog.ChangeEvent{Kind: eventlog.KindTrade})
	tr.log.Append(eventlog.ChangeEvent{Kind: eventlog.KindTrade})

	count, err := tr.Wipe(store)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 0, tr.log.Len())
	assert.Equal(t, uint64(0), tr.log.LatestSeq())
	assert.True(t, rewound)

	// 序列空间从 1 重新开始
	ev := tr.log.Append(eventlog.ChangeEvent{Kind: eventlog.KindTrade})
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestTracker_WipeDrainsPendingWrites(t *testing.T) {
	store := newFakeStore()
	persister, err := NewPersister(2)
	require.NoError(t, err)
	defer persister.Close()

	log := eventlog.NewLog(1000)
	prices := cache.NewPriceCache()
	dedup := cache.NewDedupCache(time.Minute)
	reconciler := NewReconciler("BTC", "BTCUSD-PERP", log, store, prices, persister, nil)
	fills := NewFillProcessor("BTC", "BTCUSD-PERP", log, store, dedup, persister, nil)
	tr := New(newFakeFeed(), log, reconciler, fills, prices, Options{
		Coin:   "BTC",
		Symbol: "BTCUSD-PERP",
	})

	// 在途慢写：清库必须等它落地后再删，否则清完又冒出旧行
	persister.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		store.UpsertTradeIfNew(&models.HlTrade{
			Time: 1000, Address: "0xaaa", Size: 1, Px: 64000,
		})
	})

	count, err := tr.Wipe(store)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Zero(t, store.tradeCount())

	// 排空后工作池照常接单
	done := make(chan struct{})
	persister.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persister not usable after wipe drain")
	}
}
