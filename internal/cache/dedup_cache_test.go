package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_IsSeen(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)

	// 测试首次查询
	assert.False(t, cache.IsSeen("addr1", 123))

	// 测试标记
	cache.Mark("addr1", 123)
	assert.True(t, cache.IsSeen("addr1", 123))

	// 测试不同地址
	assert.False(t, cache.IsSeen("addr2", 123))

	// 测试不同 tid
	assert.False(t, cache.IsSeen("addr1", 456))
}

func TestDedupCache_TTL(t *testing.T) {
	cache := NewDedupCache(100 * time.Millisecond)

	cache.Mark("addr1", 123)
	assert.True(t, cache.IsSeen("addr1", 123))

	// 等待过期
	time.Sleep(150 * time.Millisecond)
	assert.False(t, cache.IsSeen("addr1", 123))
}

func TestDedupCache_Concurrent(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)
	done := make(chan bool)

	// 10 个协程同时读写
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				tid := int64(id*1000 + j)
				cache.Mark("addr_concurrent", tid)
				cache.IsSeen("addr_concurrent", tid)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.True(t, cache.IsSeen("addr_concurrent", 5000))
}

func TestDedupCache_Stats(t *testing.T) {
	cache := NewDedupCache(5 * time.Minute)

	cache.Mark("addr1", 1)
	cache.Mark("addr2", 2)
	cache.Mark("addr3", 3)

	stats := cache.Stats()
	assert.Equal(t, 3, stats["item_count"])
	assert.Equal(t, 5.0, stats["ttl_minutes"])
}

func BenchmarkDedupCache_Mark(b *testing.B) {
	cache := NewDedupCache(30 * time.Minute)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Mark("addr_bench", int64(i))
	}
}

func BenchmarkDedupCache_IsSeen(b *testing.B) {
	cache := NewDedupCache(30 * time.Minute)
	for i := 0; i < 10000; i++ {
		cache.Mark("addr_bench", int64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.IsSeen("addr_bench", int64(i%10000))
	}
}
