package dao

import (
	"strings"

	"github.com/utrading/utrading-hl-tracker/internal/models"
)

type TrackedAddressDAO struct{}

var _trackedAddress = &TrackedAddressDAO{}

// TrackedAddress 获取 TrackedAddressDAO 单例
func TrackedAddress() *TrackedAddressDAO {
	return _trackedAddress
}

// ListDistinct 返回启用中的地址集合（统一小写，去重）
func (d *TrackedAddressDAO) ListDistinct() ([]string, error) {
	var addrs []string
	err := db.Model(&models.HlTrackedAddress{}).
		Where("enabled = ?", true).
		Distinct("address").
		Order("address").
		Pluck("address", &addrs).Error
	if err != nil {
		return nil, err
	}

	for i := range addrs {
		addrs[i] = strings.ToLower(addrs[i])
	}
	return addrs, nil
}
