package tracker

import (
	"math"
	"strings"
	"sync"

	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/models"
	"github.com/utrading/utrading-hl-tracker/internal/monitor"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Snapshot 单地址的权威仓位状态。整体替换，从不局部修改。
type Snapshot struct {
	Address   string
	Size      float64
	EntryPx   *float64
	LiqPx     *float64
	Leverage  *float64
	UpdatedAt int64 // 毫秒时间戳
}

// Reconciler 仓位校准器：对比上游快照与本地状态，
// 有差异才产生事件（对上游重播的去重边界）。
type Reconciler struct {
	coin   string
	symbol string
	log    *eventlog.Log
	store  Store
	prices *cache.PriceCache

	persister *Persister
	onAppend  func(eventlog.ChangeEvent)

	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewReconciler(coin, symbol string, log *eventlog.Log, store Store,
	prices *cache.PriceCache, persister *Persister, onAppend func(eventlog.ChangeEvent)) *Reconciler {
	return &Reconciler{
		coin:      coin,
		symbol:    symbol,
		log:       log,
		store:     store,
		prices:    prices,
		persister: persister,
		onAppend:  onAppend,
		snapshots: make(map[string]Snapshot),
	}
}

// Apply 处理一次上游仓位通知。快照无变化时不产生事件不落库。
// 返回是否产生了事件。
func (r *Reconciler) Apply(update feed.PositionUpdate) bool {
	address := strings.ToLower(update.Address)
	if address == "" {
		return false
	}

	next := Snapshot{
		Address:   address,
		Size:      sanitizeSize(update.Szi),
		EntryPx:   sanitizePtr(update.EntryPx),
		LiqPx:     sanitizePtr(update.LiqPx),
		Leverage:  sanitizePtr(update.Leverage),
		UpdatedAt: update.Time,
	}

	r.mu.Lock()
	prev, exists := r.snapshots[address]
	if exists && sameSnapshot(prev, next) {
		r.mu.Unlock()
		return false
	}
	r.snapshots[address] = next

	ev := eventlog.ChangeEvent{
		Kind:     eventlog.KindPosition,
		Time:     next.UpdatedAt,
		Address:  address,
		Symbol:   r.symbol,
		Size:     next.Size,
		Side:     positionSide(next.Size),
		EntryPx:  next.EntryPx,
		LiqPx:    next.LiqPx,
		Leverage: next.Leverage,
	}
	ev.UnrealizedPnl = r.unrealizedPnl(next, update.MarkPx)

	// 追加和快照替换在同一临界区内，读者看不到半成品状态
	appended := r.log.Append(ev)
	r.mu.Unlock()

	monitor.GetMetrics().IncEventsAppended(eventlog.KindPosition)

	if r.onAppend != nil {
		r.onAppend(appended)
	}

	r.persister.Submit(func() {
		if _, err := r.store.InsertEvent(appended); err != nil {
			logger.Warn().Err(err).Str("address", address).Msg("persist position event failed")
			monitor.GetMetrics().IncPersistErrors("hl_change_events")
		}
		row := &models.HlPositionSnapshot{
			Address:   address,
			Symbol:    r.symbol,
			Szi:       next.Size,
			EntryPx:   next.EntryPx,
			LiqPx:     next.LiqPx,
			Leverage:  next.Leverage,
			UpdatedAt: next.UpdatedAt,
		}
		if err := r.store.UpsertSnapshot(row); err != nil {
			logger.Warn().Err(err).Str("address", address).Msg("persist snapshot failed")
			monitor.GetMetrics().IncPersistErrors("hl_position_snapshots")
		}
	})

	return true
}

// Get 返回某地址的当前快照
func (r *Reconciler) Get(address string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[strings.ToLower(address)]
	return snap, ok
}

// All 返回全部快照
func (r *Reconciler) All() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.snapshots))
	for _, snap := range r.snapshots {
		out = append(out, snap)
	}
	return out
}

// Drop 地址取消跟踪时移除快照状态
func (r *Reconciler) Drop(address string) {
	r.mu.Lock()
	delete(r.snapshots, strings.ToLower(address))
	r.mu.Unlock()
}

// unrealizedPnl = size * (mark - entry)，entry 或 mark 缺失时为 null
func (r *Reconciler) unrealizedPnl(snap Snapshot, markPx *float64) *float64 {
	if snap.EntryPx == nil {
		return nil
	}

	mark := 0.0
	switch {
	case markPx != nil && isFinite(*markPx):
		mark = *markPx
	default:
		cached, ok := r.prices.GetMarkPrice(r.coin)
		if !ok {
			return nil
		}
		mark = cached
	}

	pnl := snap.Size * (mark - *snap.EntryPx)
	return &pnl
}

func positionSide(size float64) string {
	switch {
	case size > 0:
		return eventlog.SideLong
	case size < 0:
		return eventlog.SideShort
	default:
		return eventlog.SideFlat
	}
}

func sameSnapshot(a, b Snapshot) bool {
	return a.Size == b.Size &&
		samePtr(a.EntryPx, b.EntryPx) &&
		samePtr(a.LiqPx, b.LiqPx) &&
		samePtr(a.Leverage, b.Leverage)
}

func samePtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sanitizeSize 非有限值归零
func sanitizeSize(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

// sanitizePtr 非有限值归 null
func sanitizePtr(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	f := *v
	return &f
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
