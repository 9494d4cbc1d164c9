package model

import (
	"time"
)

// MediaFile 媒体文件的存储位置记录，决定迁移走哪条代码路径.
type MediaFile struct {
	ID       uint   `gorm:"primaryKey"                                 json:"id"`
	MediaID  string `gorm:"size:255;index:idx_media_owner,unique"      json:"media_id"`
	UserID   string `gorm:"size:255;index:idx_media_owner,unique;index" json:"user_id"`
	FileName string `gorm:"size:512"                                   json:"file_name"`
	FileSize int64  `json:"file_size"`
	// 当前存储层级：local / server / server_chunked
	StorageType StorageType `gorm:"size:32;index" json:"storage_type"`
	// local 层级：用户机器上的文件路径与机器标识
	OriginalPath string `gorm:"size:1024" json:"original_path,omitempty"`
	ComputerID   string `gorm:"size:255"  json:"computer_id,omitempty"`
	// server 层级：服务器磁盘上的文件路径
	ServerPath string `gorm:"size:1024" json:"server_path,omitempty"`
	// 最近一次本地文件校验时间，无论校验结果如何都会更新
	LastLocalCheck *time.Time `json:"last_local_check,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名.
func (MediaFile) TableName() string {
	return "media_files"
}
