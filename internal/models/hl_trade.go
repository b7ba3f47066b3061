package models

import "time"

// HlTrade 成交记录。TxKey 是分层身份键（优先 L1 哈希，缺失时为复合键），
// 唯一索引保证 upsert-by-identity 幂等。
type HlTrade struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TxKey   string `gorm:"type:varchar(128);not null;uniqueIndex:uidx_tx_key" json:"-"`
	Time    int64  `gorm:"column:trade_time;not null;index:idx_time_id,priority:1" json:"time"`
	Address string `gorm:"type:varchar(42);not null;index" json:"address"`
	Symbol  string `gorm:"type:varchar(24);not null" json:"symbol"`

	Action        string   `gorm:"type:varchar(16);not null" json:"action"`
	Side          string   `gorm:"type:varchar(8);not null" json:"side"`
	Direction     string   `gorm:"type:varchar(8);not null" json:"direction"`
	Effect        string   `gorm:"type:varchar(8);not null" json:"effect"`
	Size          float64  `gorm:"not null" json:"size"`
	StartPosition float64  `gorm:"not null" json:"start_position"`
	Px            float64  `gorm:"not null" json:"px"`
	ClosedPnl     *float64 `json:"closed_pnl"`
	Fee           *float64 `json:"fee"`
	FeeToken      string   `gorm:"type:varchar(16)" json:"fee_token"`
	Hash          string   `gorm:"type:varchar(80);index" json:"hash"`
	Tid           int64    `gorm:"not null;default:0" json:"tid"`
	Oid           int64    `gorm:"not null;default:0" json:"oid"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (HlTrade) TableName() string {
	return "hl_trades"
}
