package dao

import (
	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-hl-tracker/internal/models"
)

type SnapshotDAO struct{}

var _snapshot = &SnapshotDAO{}

// Snapshot 获取 SnapshotDAO 单例
func Snapshot() *SnapshotDAO {
	return _snapshot
}

// Upsert 按地址整行覆盖仓位快照
func (d *SnapshotDAO) Upsert(row *models.HlPositionSnapshot) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol", "szi", "entry_px", "liq_px", "leverage", "updated_at",
		}),
	}).Create(row).Error
}

// Get 获取指定地址的仓位快照
func (d *SnapshotDAO) Get(address string) (*models.HlPositionSnapshot, error) {
	var row models.HlPositionSnapshot
	if err := db.Where("address = ?", address).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteByAddress 删除指定地址的快照（取消跟踪时）
func (d *SnapshotDAO) DeleteByAddress(address string) error {
	return db.Where("address = ?", address).Delete(&models.HlPositionSnapshot{}).Error
}
