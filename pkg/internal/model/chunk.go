package model

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ChunkMetadata 分块元数据模型，一行代表一个被切分的媒体文件.
// ChunkInfoJSON 以 JSON 文本存储每个分块的记录列表，避免为分块单独建表.
type ChunkMetadata struct {
	ID               uint   `gorm:"primaryKey"                                      json:"id"`
	MediaID          string `gorm:"size:255;index:idx_media_user,unique;index"      json:"media_id"`
	UserID           string `gorm:"size:255;index:idx_media_user,unique;index"      json:"user_id"`
	OriginalFilename string `gorm:"size:512"                                        json:"original_filename"`
	OriginalSize     int64  `json:"original_size"`
	TotalChunks      int    `json:"total_chunks"`
	ChunkSize        int64  `json:"chunk_size"`
	MimeType         string `gorm:"size:255"  json:"mime_type"`
	// 整文件校验和（可选）
	Checksum      string    `gorm:"size:64"   json:"checksum"`
	ChunkInfoJSON string    `gorm:"type:text" json:"-"`
	IsComplete    bool      `gorm:"index"     json:"is_complete"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName 指定表名.
func (ChunkMetadata) TableName() string {
	return "chunk_metadata"
}

// ChunkRecord 单个物理分块的记录，序列化进 ChunkInfoJSON.
type ChunkRecord struct {
	ChunkIndex int       `json:"chunkIndex"`
	ChunkID    string    `json:"chunkId"` // 由媒体 ID 与序号确定性生成
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"` // MD5 内容校验和
	FilePath   string    `json:"filePath"`
	CreatedAt  time.Time `json:"createdAt"`
	Stored     bool      `json:"stored"`
}

// Chunks 反序列化 ChunkInfoJSON.
func (m *ChunkMetadata) Chunks() ([]ChunkRecord, error) {
	if m.ChunkInfoJSON == "" {
		return nil, nil
	}

	var records []ChunkRecord
	if err := sonic.UnmarshalString(m.ChunkInfoJSON, &records); err != nil {
		return nil, fmt.Errorf("failed to decode chunk info: %w", err)
	}

	return records, nil
}

// SetChunks 序列化分块记录列表到 ChunkInfoJSON.
func (m *ChunkMetadata) SetChunks(records []ChunkRecord) error {
	s, err := sonic.MarshalString(records)
	if err != nil {
		return fmt.Errorf("failed to encode chunk info: %w", err)
	}

	m.ChunkInfoJSON = s

	return nil
}
