package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Publisher NATS 发布器，把追加到事件日志的变更扇出给下游服务
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	return &Publisher{Conn: conn}, nil
}

// PublishChangeEvent 发布一条变更事件。失败只记日志，
// NATS 是旁路扇出，不影响主推送链路。
func (p *Publisher) PublishChangeEvent(ev eventlog.ChangeEvent) error {
	msg := &TrackerEvent{ChangeEvent: ev}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	if err = p.Publish(TopicTrackerEvents, data); err != nil {
		logger.Warn().Err(err).Uint64("seq", ev.Seq).Msg("publish change event failed")
		return err
	}
	return nil
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	if p.Conn != nil {
		p.Conn.Close()
	}
	return nil
}
