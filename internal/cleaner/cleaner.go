package cleaner

import (
	"time"

	"github.com/utrading/utrading-hl-tracker/internal/dao"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

const (
	tradeRetention = 7 * 24 * time.Hour
	eventRetention = 3 * 24 * time.Hour
	maxTradeRows   = 500000
)

// Cleaner 数据清理器，定时按保留期和行数上限修剪历史数据
type Cleaner struct {
	interval time.Duration
	done     chan struct{}
}

// NewCleaner 创建清理器
func NewCleaner() *Cleaner {
	return &Cleaner{
		interval: 1 * time.Hour,
		done:     make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	goplus.Go(func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Msg("cleaner started")

		// 启动时立即执行一次
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	})
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	close(c.done)
}

func (c *Cleaner) clean() {
	logger.Debug().Msg("running cleanup task")

	if err := c.cleanTrades(); err != nil {
		logger.Error().Err(err).Msg("clean trades failed")
	}
	if err := c.cleanEvents(); err != nil {
		logger.Error().Err(err).Msg("clean events failed")
	}
}

// cleanTrades 清理成交记录：时间优先（7 天），数量兜底（50 万条）
func (c *Cleaner) cleanTrades() error {
	cutoff := time.Now().Add(-tradeRetention).UnixMilli()
	deleted, err := dao.Trade().DeleteOld(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Msg("cleaned old trades by time")
	}

	count, err := dao.Trade().Count()
	if err != nil {
		return err
	}
	if count > maxTradeRows {
		excess := count - maxTradeRows
		deleted, err = dao.Trade().DeleteOldest(excess)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info().
				Int64("deleted", deleted).
				Int64("total", count).
				Int64("limit", int64(maxTradeRows)).
				Msg("cleaned excess trades by count")
		}
	}

	return nil
}

// cleanEvents 清理 3 天前的事件落盘记录。
// 事件日志本身在内存中有界，这里只管持久化副本。
func (c *Cleaner) cleanEvents() error {
	cutoff := time.Now().Add(-eventRetention).UnixMilli()
	deleted, err := dao.Event().DeleteOld(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Msg("cleaned old change events")
	}
	return nil
}
