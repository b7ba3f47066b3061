package dao

import (
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-hl-tracker/internal/models"
)

type TradeDAO struct{}

var _trade = &TradeDAO{}

// Trade 获取 TradeDAO 单例
func Trade() *TradeDAO {
	return _trade
}

// IdentityKey 计算成交的分层身份键。
// 优先 L1 交易哈希，缺失时退化为 (time, address, size, price) 复合键。
func (d *TradeDAO) IdentityKey(t *models.HlTrade) string {
	if t.Hash != "" {
		return t.Hash
	}
	return fmt.Sprintf("%d-%s-%v-%v", t.Time, t.Address, t.Size, t.Px)
}

// UpsertIfNew 按身份键幂等写入。返回存储主键和本次是否新插入。
// 已存在时不修改既有行（上游重播的旧数据不应覆盖已落盘记录）。
func (d *TradeDAO) UpsertIfNew(t *models.HlTrade) (int64, bool, error) {
	if t.TxKey == "" {
		t.TxKey = d.IdentityKey(t)
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_key"}},
		DoNothing: true,
	}).Create(t)
	if result.Error != nil {
		return 0, false, result.Error
	}

	if result.RowsAffected > 0 {
		return t.ID, true, nil
	}

	// 冲突路径：查出既有行的主键
	var existing models.HlTrade
	if err := db.Select("id").
		Where("tx_key = ?", t.TxKey).
		First(&existing).Error; err != nil {
		return 0, false, err
	}
	return existing.ID, false, nil
}

// PageQuery 分页参数，BeforeAt/BeforeID 为 0 时从最新开始
type PageQuery struct {
	Address  string
	Limit    int
	BeforeAt int64
	BeforeID int64
}

// PageByTime 按 (trade_time, id) 降序分页
func (d *TradeDAO) PageByTime(q PageQuery) ([]*models.HlTrade, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	tx := db.Model(&models.HlTrade{})
	if q.Address != "" {
		tx = tx.Where("address = ?", q.Address)
	}
	if q.BeforeAt > 0 {
		tx = tx.Where("trade_time < ? OR (trade_time = ? AND id < ?)",
			q.BeforeAt, q.BeforeAt, q.BeforeID)
	}

	var rows []*models.HlTrade
	err := tx.Order("trade_time DESC, id DESC").Limit(q.Limit).Find(&rows).Error
	return rows, err
}

// DeleteAll 清空全部成交记录，返回删除行数
func (d *TradeDAO) DeleteAll() (int64, error) {
	result := db.Where("1 = 1").Delete(&models.HlTrade{})
	return result.RowsAffected, result.Error
}

// DeleteOld 删除指定时间之前的成交记录
func (d *TradeDAO) DeleteOld(beforeMs int64) (int64, error) {
	result := db.Where("trade_time < ?", beforeMs).Delete(&models.HlTrade{})
	return result.RowsAffected, result.Error
}

// DeleteOldest 按时间从旧到新删除最多 limit 条成交记录
func (d *TradeDAO) DeleteOldest(limit int64) (int64, error) {
	result := db.Exec(
		"DELETE FROM "+models.HlTrade{}.TableName()+" ORDER BY trade_time ASC, id ASC LIMIT ?",
		limit,
	)
	return result.RowsAffected, result.Error
}

// Count 成交记录总数
func (d *TradeDAO) Count() (int64, error) {
	var count int64
	err := db.Model(&models.HlTrade{}).Count(&count).Error
	return count, err
}
