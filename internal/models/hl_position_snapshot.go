package models

// HlPositionSnapshot 每个地址一行的权威仓位快照，按 address 整行覆盖
type HlPositionSnapshot struct {
	ID       int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address  string   `gorm:"type:varchar(42);not null;uniqueIndex:uidx_address" json:"address"`
	Symbol   string   `gorm:"type:varchar(24);not null" json:"symbol"`
	Szi      float64  `gorm:"not null;default:0;comment:有符号仓位" json:"szi"`
	EntryPx  *float64 `gorm:"comment:开仓均价" json:"entry_px"`
	LiqPx    *float64 `gorm:"comment:强平价" json:"liq_px"`
	Leverage *float64 `gorm:"comment:杠杆倍数" json:"leverage"`

	UpdatedAt int64 `gorm:"not null;index:idx_updated;comment:毫秒时间戳" json:"updated_at"`
}

func (HlPositionSnapshot) TableName() string {
	return "hl_position_snapshots"
}
