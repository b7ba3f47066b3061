package eventlog

import (
	"sync"
)

const (
	// MinCapacity 容量下限，配置低于该值时按该值处理
	MinCapacity = 100
	// MaxPageSize ListSince 单次返回的硬上限
	MaxPageSize = 1000
)

// Log 有界事件日志。序列号单调递增且仅在 Append 时分配一次，
// 超出容量后从头部淘汰最旧的事件，序列号不回收。
type Log struct {
	mu       sync.RWMutex
	events   []ChangeEvent
	nextSeq  uint64
	capacity int
}

// NewLog 创建事件日志，capacity 低于 MinCapacity 时取 MinCapacity
func NewLog(capacity int) *Log {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Log{
		events:   make([]ChangeEvent, 0, capacity),
		nextSeq:  1,
		capacity: capacity,
	}
}

// Append 分配下一个序列号并追加事件，返回带序列号的副本
func (l *Log) Append(ev ChangeEvent) ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = l.nextSeq
	l.nextSeq++
	l.events = append(l.events, ev)

	if len(l.events) > l.capacity {
		overflow := len(l.events) - l.capacity
		l.events = append(l.events[:0], l.events[overflow:]...)
	}

	return ev
}

// ListSince 返回序列号严格大于 seq 的事件，最多 limit 条。
// 请求早于最旧保留事件的序列号时直接从最旧事件开始返回，不报错；
// 调用方应将"比预期短的补齐结果"视为需要从持久化存储全量重拉的信号。
func (l *Log) ListSince(seq uint64, limit int) []ChangeEvent {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 {
		return nil
	}

	// 存活窗口内序列号连续，可以直接定位偏移
	oldest := l.events[0].Seq
	var start int
	if seq >= oldest {
		start = int(seq - oldest + 1)
	}
	if start >= len(l.events) {
		return nil
	}

	end := start + limit
	if end > len(l.events) {
		end = len(l.events)
	}

	out := make([]ChangeEvent, end-start)
	copy(out, l.events[start:end])
	return out
}

// LatestSeq 返回最近分配的序列号，尚无事件时为 0
func (l *Log) LatestSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq - 1
}

// OldestSeq 返回最旧保留事件的序列号，日志为空时为 0
func (l *Log) OldestSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return 0
	}
	return l.events[0].Seq
}

// Len 返回当前保留的事件数量
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Reset 清空日志并将序列号重置为 1，仅供运维清库时调用
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = l.events[:0]
	l.nextSeq = 1
}
