package eventlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(l *Log, n int) {
	for i := 0; i < n; i++ {
		l.Append(ChangeEvent{Kind: KindPosition, Address: "0xabc", Symbol: "BTCUSD-PERP"})
	}
}

func TestLog_SequenceMonotonic(t *testing.T) {
	l := NewLog(100)

	var last uint64
	for i := 0; i < 300; i++ {
		ev := l.Append(ChangeEvent{Kind: KindTrade})
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}

	// 淘汰不影响序列号分配
	assert.Equal(t, uint64(300), l.LatestSeq())
}

func TestLog_CapacityFloor(t *testing.T) {
	// 配置 50，实际按下限 100 保留
	l := NewLog(50)
	appendN(l, 150)

	events := l.ListSince(0, 1000)
	require.Len(t, events, 100)
	assert.Equal(t, uint64(51), events[0].Seq)
	assert.Equal(t, uint64(150), events[99].Seq)
	assert.Equal(t, uint64(51), l.OldestSeq())
	assert.Equal(t, uint64(150), l.LatestSeq())
}

func TestLog_BoundedRetention(t *testing.T) {
	l := NewLog(200)
	appendN(l, 500)

	assert.Equal(t, 200, l.Len())

	events := l.ListSince(0, 1000)
	require.Len(t, events, 200)
	// 保留的正好是最新的 200 条
	assert.Equal(t, uint64(301), events[0].Seq)
	assert.Equal(t, uint64(500), events[len(events)-1].Seq)
}

func TestLog_ListSince(t *testing.T) {
	l := NewLog(100)
	appendN(l, 10)

	events := l.ListSince(5, 100)
	require.Len(t, events, 5)
	assert.Equal(t, uint64(6), events[0].Seq)
	assert.Equal(t, uint64(10), events[4].Seq)

	// limit 生效
	events = l.ListSince(0, 3)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].Seq)

	// 从最新位置读取为空
	assert.Empty(t, l.ListSince(10, 100))
	assert.Empty(t, l.ListSince(999, 100))
}

func TestLog_ListSinceIdempotent(t *testing.T) {
	l := NewLog(100)
	appendN(l, 20)

	first := l.ListSince(5, 10)
	second := l.ListSince(5, 10)
	assert.Equal(t, first, second)
}

func TestLog_ListSinceBeforeOldest(t *testing.T) {
	l := NewLog(100)
	appendN(l, 250)

	// 请求已淘汰的序列号，从最旧的开始补
	events := l.ListSince(10, 1000)
	require.NotEmpty(t, events)
	assert.Equal(t, uint64(151), events[0].Seq)
}

func TestLog_PageCap(t *testing.T) {
	l := NewLog(2000)
	appendN(l, 1500)

	events := l.ListSince(0, 100000)
	assert.Len(t, events, MaxPageSize)
}

func TestLog_Reset(t *testing.T) {
	l := NewLog(100)
	appendN(l, 42)
	require.Equal(t, uint64(42), l.LatestSeq())

	l.Reset()
	assert.Equal(t, uint64(0), l.LatestSeq())
	assert.Empty(t, l.ListSince(0, 100))

	ev := l.Append(ChangeEvent{Kind: KindTrade})
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestLog_ConcurrentAppendRead(t *testing.T) {
	l := NewLog(500)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(ChangeEvent{Kind: KindTrade})
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				events := l.ListSince(0, 100)
				// 读到的序列号必须严格递增且事件完整
				var last uint64
				for _, ev := range events {
					if last != 0 {
						assert.Equal(t, last+1, ev.Seq)
					}
					last = ev.Seq
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, uint64(1000), l.LatestSeq())
	assert.Equal(t, 500, l.Len())
}
