package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/models"
)

// fakeStore 内存 Store，按身份键模拟幂等 upsert
type fakeStore struct {
	mu        sync.Mutex
	events    []eventlog.ChangeEvent
	snapshots map[string]*models.HlPositionSnapshot
	trades    map[string]int64
	nextID    int64
	tradeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: make(map[string]*models.HlPositionSnapshot),
		trades:    make(map[string]int64),
	}
}

func (s *fakeStore) InsertEvent(ev eventlog.ChangeEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) UpsertSnapshot(row *models.HlPositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[row.Address] = row
	return nil
}

func (s *fakeStore) UpsertTradeIfNew(t *models.HlTrade) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tradeErr != nil {
		return 0, false, s.tradeErr
	}

	key := t.Hash
	if key == "" {
		key = fmt.Sprintf("%d-%s-%v-%v", t.Time, t.Address, t.Size, t.Px)
	}
	if id, ok := s.trades[key]; ok {
		return id, false, nil
	}
	s.nextID++
	s.trades[key] = s.nextID
	return s.nextID, true, nil
}

func (s *fakeStore) DeleteAllTrades() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := int64(len(s.trades))
	s.trades = make(map[string]int64)
	return count, nil
}

func (s *fakeStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func (s *fakeStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fakeFeed 可编程的确定性上游，记录订阅与拉取调用
type fakeFeed struct {
	mu        sync.Mutex
	handlers  feed.Handlers
	posSubs   map[string]bool
	fillSubs  map[string]bool
	pulls     map[string]int
	pullDelay time.Duration
	pullErr   error
	pullSzi   float64
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		posSubs:  make(map[string]bool),
		fillSubs: make(map[string]bool),
		pulls:    make(map[string]int),
	}
}

func (f *fakeFeed) SetHandlers(h feed.Handlers)     { f.handlers = h }
func (f *fakeFeed) Start(ctx context.Context) error { return nil }
func (f *fakeFeed) Close() error                    { return nil }

func (f *fakeFeed) SubscribePositions(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posSubs[address] = true
	return nil
}

func (f *fakeFeed) UnsubscribePositions(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posSubs, address)
	return nil
}

func (f *fakeFeed) SubscribeFills(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fillSubs[address] = true
	return nil
}

func (f *fakeFeed) UnsubscribeFills(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fillSubs, address)
	return nil
}

func (f *fakeFeed) PullSnapshot(ctx context.Context, address string) (*feed.PositionUpdate, error) {
	f.mu.Lock()
	f.pulls[address]++
	delay, err, szi := f.pullDelay, f.pullErr, f.pullSzi
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	entry := 64000.0
	return &feed.PositionUpdate{
		Address: address,
		Coin:    "BTC",
		Time:    time.Now().UnixMilli(),
		Szi:     szi,
		EntryPx: &entry,
	}, nil
}

func (f *fakeFeed) pullCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls[address]
}

func (f *fakeFeed) subscribed(address string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posSubs[address], f.fillSubs[address]
}
