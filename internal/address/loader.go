package address

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-hl-tracker/internal/dao"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Refresher 接收权威地址集的一方（订阅管理器）
type Refresher interface {
	Refresh(addresses []string)
}

// Loader 周期性从 hl_tracked_addresses 表加载跟踪地址集。
// 地址从表里消失后先进入宽限期，到期才真正取消跟踪，
// 避免短暂的配置抖动拆掉订阅又重建。
type Loader struct {
	refresher   Refresher
	interval    time.Duration
	removeGrace time.Duration

	mu            sync.Mutex
	lastAddrs     map[string]struct{}
	pendingRemove map[string]time.Time // 消失地址 → 发现消失的时间

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLoader 创建地址加载器
func NewLoader(refresher Refresher, interval, removeGrace time.Duration) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		refresher:     refresher,
		interval:      interval,
		removeGrace:   removeGrace,
		lastAddrs:     make(map[string]struct{}),
		pendingRemove: make(map[string]time.Time),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start 立即同步一次并启动周期刷新
func (l *Loader) Start() error {
	if err := l.loadAndSync(); err != nil {
		return err
	}

	goplus.Go(l.periodicReload)
	return nil
}

// Stop 停止加载器
func (l *Loader) Stop() {
	l.cancel()
}

func (l *Loader) periodicReload() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.loadAndSync(); err != nil {
				logger.Error().Err(err).Msg("address reload failed")
			}
		}
	}
}

// loadAndSync 计算有效地址集（表内地址 + 宽限期内的地址）并下发
func (l *Loader) loadAndSync() error {
	current, err := l.loadTrackedAddresses()
	if err != nil {
		return err
	}

	now := time.Now()

	l.mu.Lock()

	// 地址恢复：重新出现的地址撤销待移除状态
	var recovered int
	for addr := range current {
		if _, pending := l.pendingRemove[addr]; pending {
			delete(l.pendingRemove, addr)
			recovered++
		}
	}

	// 新消失的地址进入宽限期
	for addr := range l.lastAddrs {
		if _, ok := current[addr]; ok {
			continue
		}
		if _, pending := l.pendingRemove[addr]; !pending {
			l.pendingRemove[addr] = now
		}
	}

	// 有效集 = 表内地址 + 仍在宽限期内的地址
	effective := make([]string, 0, len(current)+len(l.pendingRemove))
	for addr := range current {
		effective = append(effective, addr)
	}
	for addr, since := range l.pendingRemove {
		if now.Sub(since) >= l.removeGrace {
			delete(l.pendingRemove, addr)
			logger.Info().Str("address", addr).Msg("address removal grace expired")
			continue
		}
		effective = append(effective, addr)
	}

	l.lastAddrs = make(map[string]struct{}, len(effective))
	for _, addr := range effective {
		l.lastAddrs[addr] = struct{}{}
	}
	pending := len(l.pendingRemove)
	l.mu.Unlock()

	l.refresher.Refresh(effective)

	if recovered > 0 {
		logger.Info().Int("recovered", recovered).Msg("addresses recovered from pending removal")
	}
	logger.Info().
		Int("total", len(current)).
		Int("effective", len(effective)).
		Int("pending_remove", pending).
		Msg("address sync completed")
	return nil
}

// loadTrackedAddresses 从表加载启用中的地址
func (l *Loader) loadTrackedAddresses() (map[string]struct{}, error) {
	addresses, err := dao.TrackedAddress().ListDistinct()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return make(map[string]struct{}), nil
		}
		return nil, err
	}

	result := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		result[addr] = struct{}{}
	}
	return result, nil
}
