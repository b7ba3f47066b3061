package nats

import (
	"encoding/json"

	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

const TopicTrackerEvents = "hl.tracker.events"

// TrackerEvent 下游消费的事件消息，直接复用事件日志的载荷
type TrackerEvent struct {
	eventlog.ChangeEvent
}

// Marshal 序列化事件
func (e *TrackerEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error().Err(err).Msg("marshal tracker event failed")
		return nil, err
	}
	return data, nil
}
