package cache

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// DedupCache 成交去重缓存，使用 go-cache 实现 TTL 自动过期。
// 数据库唯一键是最终防线，这里是热路径上的快速短路。
type DedupCache struct {
	cache *cache.Cache // go-cache 内置 TTL 和自动清理
	ttl   time.Duration
}

// NewDedupCache 创建成交去重缓存
// ttl: 成交保留时间（建议 30 分钟，覆盖上游断线重播窗口）
// 清理间隔自动设为 2×TTL
func NewDedupCache(ttl time.Duration) *DedupCache {
	return &DedupCache{
		cache: cache.New(ttl, ttl*2), // 清理间隔 = 2×TTL
		ttl:   ttl,
	}
}

// IsSeen 检查成交是否已处理
func (c *DedupCache) IsSeen(address string, tid int64) bool {
	_, exists := c.cache.Get(c.dedupKey(address, tid))
	return exists
}

// Mark 标记成交为已处理
func (c *DedupCache) Mark(address string, tid int64) {
	c.cache.Set(c.dedupKey(address, tid), time.Now(), cache.DefaultExpiration)
}

// dedupKey 生成去重键
// 格式: "address-tid"
func (c *DedupCache) dedupKey(address string, tid int64) string {
	return fmt.Sprintf("%s-%d", address, tid)
}

// Stats 获取统计信息
func (c *DedupCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"item_count":  c.cache.ItemCount(),
		"ttl_minutes": c.ttl.Minutes(),
	}
}
