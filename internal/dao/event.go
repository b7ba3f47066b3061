package dao

import (
	"encoding/json"

	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/models"
)

type EventDAO struct{}

var _event = &EventDAO{}

// Event 获取 EventDAO 单例
func Event() *EventDAO {
	return _event
}

// Insert 落盘一条事件，返回存储主键
func (d *EventDAO) Insert(ev eventlog.ChangeEvent) (int64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}

	row := &models.HlChangeEvent{
		Seq:     ev.Seq,
		Kind:    ev.Kind,
		Time:    ev.Time,
		Address: ev.Address,
		Symbol:  ev.Symbol,
		Payload: string(payload),
	}
	if err = db.Create(row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// DeleteOld 删除指定时间之前的事件
func (d *EventDAO) DeleteOld(beforeMs int64) (int64, error) {
	result := db.Where("event_time < ?", beforeMs).Delete(&models.HlChangeEvent{})
	return result.RowsAffected, result.Error
}
