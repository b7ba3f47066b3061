package tracker

import (
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-hl-tracker/internal/dao"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/models"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Store 持久化边界。事件日志是会话内的真相源，
// 落库是尽力而为（失败吞掉并记日志，靠重新校准补齐）。
type Store interface {
	InsertEvent(ev eventlog.ChangeEvent) (int64, error)
	UpsertSnapshot(row *models.HlPositionSnapshot) error
	UpsertTradeIfNew(t *models.HlTrade) (id int64, inserted bool, err error)
	DeleteAllTrades() (int64, error)
}

// DAOStore 基于 dao 单例的 Store 实现
type DAOStore struct{}

var _ Store = DAOStore{}

func (DAOStore) InsertEvent(ev eventlog.ChangeEvent) (int64, error) {
	return dao.Event().Insert(ev)
}

func (DAOStore) UpsertSnapshot(row *models.HlPositionSnapshot) error {
	return dao.Snapshot().Upsert(row)
}

func (DAOStore) UpsertTradeIfNew(t *models.HlTrade) (int64, bool, error) {
	return dao.Trade().UpsertIfNew(t)
}

func (DAOStore) DeleteAllTrades() (int64, error) {
	return dao.Trade().DeleteAll()
}

// Persister 异步持久化协程池。池满时降级为同步执行，不丢写。
type Persister struct {
	pool *ants.Pool
}

func NewPersister(size int) (*Persister, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Persister{pool: pool}, nil
}

func (p *Persister) Submit(task func()) {
	if p == nil || p.pool == nil {
		task()
		return
	}
	if err := p.pool.Submit(task); err != nil {
		logger.Warn().Err(err).Msg("persist pool saturated, running inline")
		task()
	}
}

// Drain 等待在途任务跑完后重启工作池。
// 清库前调用，挡住清库前排队的写在清库后落地。
func (p *Persister) Drain(timeout time.Duration) {
	if p == nil || p.pool == nil {
		return
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		logger.Warn().Err(err).Msg("persister drain timed out")
	}
	p.pool.Reboot()
}

func (p *Persister) Close() {
	if p != nil && p.pool != nil {
		p.pool.Release()
	}
}
