package cache

import (
	"github.com/utrading/utrading-hl-tracker/pkg/concurrent"
)

// PriceCache 合约标记价缓存 BTC -> 123.0
type PriceCache struct {
	markCache concurrent.Map[string, float64]
}

// NewPriceCache 创建价格缓存
func NewPriceCache() *PriceCache {
	return &PriceCache{
		markCache: concurrent.Map[string, float64]{},
	}
}

// GetMarkPrice 获取合约标记价
func (c *PriceCache) GetMarkPrice(coin string) (float64, bool) {
	return c.markCache.Load(coin)
}

// SetMarkPrice 设置合约标记价
func (c *PriceCache) SetMarkPrice(coin string, price float64) {
	c.markCache.Store(coin, price)
}

// Stats 获取统计信息
func (c *PriceCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"mark_count": c.markCache.Len(),
	}
}
