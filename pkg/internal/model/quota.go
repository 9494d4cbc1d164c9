package model

import (
	"time"
)

// UserStorageQuota 用户存储配额模型，每个用户一行，首次访问时懒创建.
type UserStorageQuota struct {
	ID         uint      `gorm:"primaryKey"             json:"id"`
	UserID     string    `gorm:"size:255;uniqueIndex"   json:"user_id"`
	QuotaLimit int64     `gorm:"not null"               json:"quota_limit"` // 配额上限（字节）
	QuotaUsed  int64     `gorm:"not null;default:0"     json:"quota_used"`  // 已用空间（字节），始终 >= 0
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `gorm:"index"                  json:"updated_at"` // 超过 storage.db_stale_after 触发后台重算
}

// TableName 指定表名.
func (UserStorageQuota) TableName() string {
	return "user_storage_quotas"
}
