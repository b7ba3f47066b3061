package dao

import (
	"gorm.io/gorm"
)

var db *gorm.DB

// InitDAO 初始化所有 DAO（应用启动时调用）
func InitDAO(gdb *gorm.DB) {
	db = gdb
}

// DB 返回底层连接
func DB() *gorm.DB {
	return db
}
