package tracker

import (
	"strings"

	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/models"
	"github.com/utrading/utrading-hl-tracker/internal/monitor"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// FillProcessor 成交处理器：过滤、标注、幂等落库并追加成交事件。
type FillProcessor struct {
	coin   string
	symbol string
	log    *eventlog.Log
	store  Store
	dedup  *cache.DedupCache

	persister *Persister
	onAppend  func(eventlog.ChangeEvent)
}

func NewFillProcessor(coin, symbol string, log *eventlog.Log, store Store,
	dedup *cache.DedupCache, persister *Persister, onAppend func(eventlog.ChangeEvent)) *FillProcessor {
	return &FillProcessor{
		coin:      coin,
		symbol:    symbol,
		log:       log,
		store:     store,
		dedup:     dedup,
		persister: persister,
		onAppend:  onAppend,
	}
}

// Process 处理一笔成交。返回是否产生了事件。
// 非目标币种、数值损坏、重复成交都静默跳过。
func (p *FillProcessor) Process(f feed.Fill) bool {
	if f.Coin != p.coin {
		return false
	}
	if !isFinite(f.Px) || !isFinite(f.Sz) || !isFinite(f.StartPosition) {
		logger.Warn().Str("address", f.Address).Int64("tid", f.Tid).
			Msg("fill with non-finite fields dropped")
		monitor.GetMetrics().IncFillsProcessed("skipped")
		return false
	}

	address := strings.ToLower(f.Address)

	// 热路径短路，数据库唯一键兜底
	if f.Tid != 0 && p.dedup.IsSeen(address, f.Tid) {
		monitor.GetMetrics().IncFillsDeduped()
		return false
	}

	delta := f.Sz
	if f.Side == feed.SideSell {
		delta = -f.Sz
	}
	newPos := f.StartPosition + delta

	effect := eventlog.EffectClose
	if abs(newPos) > abs(f.StartPosition) {
		effect = eventlog.EffectOpen
	}

	// 方向取新仓位符号，归零时回退到本笔增量的符号
	direction := positionSide(newPos)
	if direction == eventlog.SideFlat {
		direction = positionSide(delta)
	}

	action := deriveAction(f.StartPosition, delta, newPos)

	row := &models.HlTrade{
		Address:       address,
		Symbol:        p.symbol,
		Time:          f.Time,
		Side:          tradeSide(f.Side),
		Direction:     direction,
		Effect:        effect,
		Action:        action,
		Size:          abs(f.Sz),
		StartPosition: f.StartPosition,
		Px:            f.Px,
		ClosedPnl:     f.ClosedPnl,
		Fee:           f.Fee,
		FeeToken:      f.FeeToken,
		Hash:          f.Hash,
		Tid:           f.Tid,
		Oid:           f.Oid,
	}

	var storageID int64
	id, inserted, err := p.store.UpsertTradeIfNew(row)
	switch {
	case err != nil:
		// 落库失败不拦截实时事件，靠下次校准补齐
		logger.Warn().Err(err).Str("address", address).Int64("tid", f.Tid).
			Msg("persist trade failed")
		monitor.GetMetrics().IncPersistErrors("hl_trades")
	case !inserted:
		// 上游重播的旧成交，不重复进事件日志
		if f.Tid != 0 {
			p.dedup.Mark(address, f.Tid)
		}
		monitor.GetMetrics().IncFillsDeduped()
		return false
	default:
		storageID = id
	}

	ev := eventlog.ChangeEvent{
		Kind:          eventlog.KindTrade,
		Time:          f.Time,
		Address:       address,
		Symbol:        p.symbol,
		Side:          tradeSide(f.Side),
		Direction:     direction,
		Effect:        effect,
		Px:            f.Px,
		Size:          abs(f.Sz),
		ClosedPnl:     f.ClosedPnl,
		StartPosition: &f.StartPosition,
		Fee:           f.Fee,
		FeeToken:      f.FeeToken,
		Hash:          f.Hash,
		Action:        action,
		TradeID:       storageID,
	}
	appended := p.log.Append(ev)
	monitor.GetMetrics().IncEventsAppended(eventlog.KindTrade)
	monitor.GetMetrics().IncFillsProcessed("appended")

	if f.Tid != 0 {
		p.dedup.Mark(address, f.Tid)
	}
	if p.onAppend != nil {
		p.onAppend(appended)
	}

	p.persister.Submit(func() {
		if _, err := p.store.InsertEvent(appended); err != nil {
			logger.Warn().Err(err).Str("address", address).Msg("persist trade event failed")
			monitor.GetMetrics().IncPersistErrors("hl_change_events")
		}
	})

	return true
}

// deriveAction 动作标签决策表，键为 (起始仓位符号, 增量符号, 新仓位是否归零)。
// 多头被卖穿成空头仍标 Decrease Long，这是既定行为。
func deriveAction(start, delta, newPos float64) string {
	switch {
	case start == 0:
		if delta > 0 {
			return eventlog.ActionOpenLong
		}
		return eventlog.ActionOpenShort
	case start > 0:
		if delta > 0 {
			return eventlog.ActionIncreaseLong
		}
		if newPos == 0 {
			return eventlog.ActionCloseLong
		}
		return eventlog.ActionDecreaseLong
	default:
		if delta < 0 {
			return eventlog.ActionIncreaseShort
		}
		if newPos == 0 {
			return eventlog.ActionCloseShort
		}
		return eventlog.ActionDecreaseShort
	}
}

func tradeSide(side string) string {
	if side == feed.SideSell {
		return eventlog.TradeSell
	}
	return eventlog.TradeBuy
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
