package models

import "time"

// HlTrackedAddress 被跟踪的链上地址
type HlTrackedAddress struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);not null;uniqueIndex:uidx_address;comment:链上地址(小写)" json:"address"`
	Label     string    `gorm:"type:varchar(64);comment:备注" json:"label"`
	Enabled   bool      `gorm:"not null;default:true;index" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (HlTrackedAddress) TableName() string {
	return "hl_tracked_addresses"
}
