package models

import "time"

// HlChangeEvent 事件日志的持久化副本。实时内存日志是会话内的事实来源，
// 该表仅做尽力而为的落盘，供重启后回溯。
type HlChangeEvent struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Seq     uint64 `gorm:"column:seq;not null;index:idx_seq" json:"seq"`
	Kind    string `gorm:"type:varchar(16);not null;index" json:"kind"`
	Time    int64  `gorm:"column:event_time;not null;index" json:"time"`
	Address string `gorm:"type:varchar(42);not null;index" json:"address"`
	Symbol  string `gorm:"type:varchar(24);not null" json:"symbol"`

	// 事件全量字段（JSON 存储）
	Payload string `gorm:"type:json;not null" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (HlChangeEvent) TableName() string {
	return "hl_change_events"
}
