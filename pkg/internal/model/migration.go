package model

import (
	"time"
)

// MigrationState 迁移状态机状态.
type MigrationState string

const (
	MigrationPending    MigrationState = "pending"
	MigrationInProgress MigrationState = "in_progress"
	MigrationCompleted  MigrationState = "completed"
	MigrationFailed     MigrationState = "failed"
	MigrationPaused     MigrationState = "paused"
	MigrationRolledBack MigrationState = "rolled_back"
)

// IsTerminal 判断状态是否为终态.
func (s MigrationState) IsTerminal() bool {
	switch s {
	case MigrationCompleted, MigrationFailed, MigrationRolledBack:
		return true
	case MigrationPending, MigrationInProgress, MigrationPaused:
		return false
	}

	return false
}

// StorageType 媒体存储层级.
type StorageType string

const (
	StorageLocal         StorageType = "local"
	StorageServer        StorageType = "server"
	StorageServerChunked StorageType = "server_chunked"
)

// StorageMigration 存储层级迁移记录.
// 同一 (media_id, user_id) 同时最多存在一条非终态记录，由调用方在发起前检查.
type StorageMigration struct {
	ID          uint           `gorm:"primaryKey"           json:"id"`
	MigrationID string         `gorm:"size:64;uniqueIndex"  json:"migration_id"`
	MediaID     string         `gorm:"size:255;index"       json:"media_id"`
	UserID      string         `gorm:"size:255;index"       json:"user_id"`
	FromType    StorageType    `gorm:"size:32"              json:"from_type"`
	ToType      StorageType    `gorm:"size:32"              json:"to_type"`
	State       MigrationState `gorm:"size:32;index"        json:"state"`
	Progress    float64        `json:"progress"` // 0-100
	StartTime   time.Time      `gorm:"index"                json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	ErrorMsg    string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	// 层级相关设置（目标本地路径、机器标识等），JSON 文本
	SettingsJSON string `gorm:"type:text" json:"-"`
	// 回滚所需的原始状态快照，JSON 文本
	RollbackJSON string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名.
func (StorageMigration) TableName() string {
	return "storage_migrations"
}
