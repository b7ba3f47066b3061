package tracker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/monitor"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Options 跟踪器运行参数
type Options struct {
	Coin             string
	Symbol           string
	PrimeMinInterval time.Duration // 非强制校准的最小间隔
	SnapshotMaxAge   time.Duration // 快照新鲜度阈值
	SweepInterval    time.Duration // 新鲜度巡检周期
}

// primeCall 进行中的校准调用，后来者等待同一个结果
type primeCall struct {
	done chan struct{}
	err  error
}

// subscription 单地址的订阅句柄
type subscription struct {
	address string
}

// Tracker 订阅管理器：维护每个跟踪地址的仓位与成交订阅，
// 随地址集变化做增减，并通过 HTTP 拉取做权威校准。
type Tracker struct {
	feed       feed.Feed
	log        *eventlog.Log
	reconciler *Reconciler
	fills      *FillProcessor
	prices     *cache.PriceCache
	opts       Options

	mu        sync.Mutex
	subs      map[string]*subscription
	priming   map[string]*primeCall
	lastPrime map[string]time.Time
	now       func() time.Time // 测试替换点

	ctx    context.Context
	cancel context.CancelFunc

	onWipe func() // 清库后通知推送层回拨游标
}

func New(f feed.Feed, log *eventlog.Log, reconciler *Reconciler,
	fills *FillProcessor, prices *cache.PriceCache, opts Options) *Tracker {
	if opts.PrimeMinInterval <= 0 {
		opts.PrimeMinInterval = 15 * time.Second
	}
	if opts.SnapshotMaxAge <= 0 {
		opts.SnapshotMaxAge = 5 * time.Minute
	}

	t := &Tracker{
		feed:       f,
		log:        log,
		reconciler: reconciler,
		fills:      fills,
		prices:     prices,
		opts:       opts,
		subs:       make(map[string]*subscription),
		priming:    make(map[string]*primeCall),
		lastPrime:  make(map[string]time.Time),
		now:        time.Now,
	}

	f.SetHandlers(feed.Handlers{
		OnPosition:  t.handlePosition,
		OnFill:      t.handleFill,
		OnMarkPrice: t.handleMarkPrice,
	})
	return t
}

// SetWipeCallback 注册清库通知（推送层游标回拨）
func (t *Tracker) SetWipeCallback(fn func()) {
	t.onWipe = fn
}

// Start 启动上游连接和新鲜度巡检
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	if err := t.feed.Start(t.ctx); err != nil {
		return err
	}

	if t.opts.SweepInterval > 0 {
		goplus.Go(t.sweepLoop)
	}
	return nil
}

// Stop 尽力拆除全部订阅后关闭上游连接。
// 单个订阅拆除失败不阻塞其他订阅。
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	addrs := make([]string, 0, len(t.subs))
	for addr := range t.subs {
		addrs = append(addrs, addr)
	}
	t.subs = make(map[string]*subscription)
	t.mu.Unlock()

	for _, addr := range addrs {
		t.teardown(addr)
	}

	if err := t.feed.Close(); err != nil {
		logger.Warn().Err(err).Msg("close feed failed")
	}
}

// Refresh 按对称差把订阅集合调整到目标地址集。
// 移除的地址同时丢弃快照状态，新增的地址触发强制校准。
func (t *Tracker) Refresh(addresses []string) {
	target := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		target[strings.ToLower(addr)] = struct{}{}
	}

	t.mu.Lock()
	var removed, added []string
	for addr := range t.subs {
		if _, ok := target[addr]; !ok {
			removed = append(removed, addr)
			delete(t.subs, addr)
		}
	}
	for addr := range target {
		if _, ok := t.subs[addr]; !ok {
			added = append(added, addr)
			t.subs[addr] = &subscription{address: addr}
		}
	}
	tracked := len(t.subs)
	t.mu.Unlock()

	monitor.GetMetrics().SetAddressesTracked(tracked)

	for _, addr := range removed {
		t.teardown(addr)
		t.reconciler.Drop(addr)
		t.mu.Lock()
		delete(t.lastPrime, addr)
		t.mu.Unlock()
		logger.Info().Str("address", addr).Msg("address untracked")
	}

	for _, addr := range added {
		if err := t.feed.SubscribePositions(addr); err != nil {
			logger.Error().Err(err).Str("address", addr).Msg("subscribe positions failed")
		}
		if err := t.feed.SubscribeFills(addr); err != nil {
			logger.Error().Err(err).Str("address", addr).Msg("subscribe fills failed")
		}
		logger.Info().Str("address", addr).Msg("address tracked")

		a := addr
		goplus.Go(func() {
			if err := t.PrimeFromHTTP(a, true); err != nil {
				logger.Warn().Err(err).Str("address", a).Msg("initial prime failed")
			}
		})
	}
}

// Tracked 返回当前跟踪的地址集合
func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.subs))
	for addr := range t.subs {
		out = append(out, addr)
	}
	return out
}

// TrackedCount 当前跟踪地址数
func (t *Tracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// PrimeFromHTTP 通过 HTTP 拉取做权威校准。
// 同地址并发调用合并为一次拉取，所有调用方等到同一个结果；
// 非强制且距上次尝试不足最小间隔时直接返回。
// 无论成败都记录尝试时间。
func (t *Tracker) PrimeFromHTTP(address string, force bool) error {
	address = strings.ToLower(address)

	t.mu.Lock()
	if call, ok := t.priming[address]; ok {
		t.mu.Unlock()
		<-call.done
		return call.err
	}

	if !force {
		if last, ok := t.lastPrime[address]; ok && t.now().Sub(last) < t.opts.PrimeMinInterval {
			t.mu.Unlock()
			monitor.GetMetrics().IncPrimes("skipped")
			return nil
		}
	}

	call := &primeCall{done: make(chan struct{})}
	t.priming[address] = call
	t.mu.Unlock()

	call.err = t.doPrime(address)
	if call.err != nil {
		monitor.GetMetrics().IncPrimes("error")
	} else {
		monitor.GetMetrics().IncPrimes("success")
	}

	t.mu.Lock()
	t.lastPrime[address] = t.now()
	delete(t.priming, address)
	t.mu.Unlock()
	close(call.done)

	return call.err
}

func (t *Tracker) doPrime(address string) error {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update, err := t.feed.PullSnapshot(ctx, address)
	if err != nil {
		return err
	}

	t.reconciler.Apply(*update)
	return nil
}

// EnsureFreshSnapshots 对快照缺失或超龄的地址并发强制校准，
// 单个地址失败不影响其他地址。
func (t *Tracker) EnsureFreshSnapshots(maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = t.opts.SnapshotMaxAge
	}

	nowMs := t.now().UnixMilli()
	var stale []string
	for _, addr := range t.Tracked() {
		snap, ok := t.reconciler.Get(addr)
		if !ok || nowMs-snap.UpdatedAt > maxAge.Milliseconds() {
			stale = append(stale, addr)
		}
	}
	if len(stale) == 0 {
		return
	}

	wg := goplus.WaitGroup{}
	for _, addr := range stale {
		a := addr
		wg.Go(func() {
			if err := t.PrimeFromHTTP(a, true); err != nil {
				logger.Warn().Err(err).Str("address", a).Msg("freshness prime failed")
			}
		})
	}
	wg.Wait()

	logger.Debug().Int("count", len(stale)).Msg("freshness sweep done")
}

// GetAllSnapshots 返回全部地址的当前快照
func (t *Tracker) GetAllSnapshots() []Snapshot {
	return t.reconciler.All()
}

// Wipe 运维清库：删除全部成交并重置事件日志序列，
// 两者在同一临界区内完成，消费者不会看到新旧序列空间混用。
func (t *Tracker) Wipe(store Store) (int64, error) {
	t.mu.Lock()
	// 先排空在途落库任务，清库前排队的写不会在清库后落地
	t.fills.persister.Drain(5 * time.Second)
	count, err := store.DeleteAllTrades()
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	t.log.Reset()
	t.mu.Unlock()

	if t.onWipe != nil {
		t.onWipe()
	}

	logger.Info().Int64("deleted", count).Msg("trade wipe completed, log sequencing restarted")
	return count, nil
}

func (t *Tracker) handlePosition(update feed.PositionUpdate) {
	t.reconciler.Apply(update)
}

// handleFill 成交处理成功后触发一次限速的非强制校准，
// 补偿推送流可能漏掉的仓位漂移。
func (t *Tracker) handleFill(f feed.Fill) {
	if !t.fills.Process(f) {
		return
	}

	addr := strings.ToLower(f.Address)
	goplus.Go(func() {
		if err := t.PrimeFromHTTP(addr, false); err != nil {
			logger.Debug().Err(err).Str("address", addr).Msg("post-fill prime failed")
		}
	})
}

func (t *Tracker) handleMarkPrice(coin string, px float64) {
	if isFinite(px) && px > 0 {
		t.prices.SetMarkPrice(coin, px)
	}
}

// teardown 尽力拆除单地址订阅，错误只记日志
func (t *Tracker) teardown(address string) {
	if err := t.feed.UnsubscribePositions(address); err != nil {
		logger.Warn().Err(err).Str("address", address).Msg("unsubscribe positions failed")
	}
	if err := t.feed.UnsubscribeFills(address); err != nil {
		logger.Warn().Err(err).Str("address", address).Msg("unsubscribe fills failed")
	}
}

func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(t.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.EnsureFreshSnapshots(t.opts.SnapshotMaxAge)
		}
	}
}
