package types

import "github.com/yeisme/transvault/pkg/internal/model"

// MigrationResult 所有公开迁移方法的统一返回结构，预期失败不以 error 形式上抛.
type MigrationResult struct {
	Success          bool                 `json:"success"`
	MigrationID      string               `json:"migration_id,omitempty"`
	State            model.MigrationState `json:"state"`
	BytesTransferred int64                `json:"bytes_transferred"`
	Error            string               `json:"error,omitempty"`
}

// MediaStorageInfo 媒体当前存储表示.
type MediaStorageInfo struct {
	MediaID     string            `json:"media_id"`
	UserID      string            `json:"user_id"`
	FileName    string            `json:"file_name"`
	FileSize    int64             `json:"file_size"`
	StorageType model.StorageType `json:"storage_type"`
	LocalPath   string            `json:"local_path,omitempty"`
	ServerPath  string            `json:"server_path,omitempty"`
	ComputerID  string            `json:"computer_id,omitempty"`
}

// LocalFileValidation validateLocalFile 的返回结构.
type LocalFileValidation struct {
	IsValid     bool `json:"is_valid"`
	Exists      bool `json:"exists"`
	Accessible  bool `json:"accessible"`
	SizeMatches bool `json:"size_matches"`
}

// SyncResult syncLocalFiles 的聚合结果，失败的不自动迁移.
type SyncResult struct {
	Synced      int      `json:"synced"`
	Failed      int      `json:"failed"`
	FailedMedia []string `json:"failed_media,omitempty"`
}

// MigrationRecommendation optimizeUserStorage 给出的单条建议.
type MigrationRecommendation struct {
	MediaID  string            `json:"media_id"`
	FileName string            `json:"file_name"`
	FileSize int64             `json:"file_size"`
	FromType model.StorageType `json:"from_type"`
	ToType   model.StorageType `json:"to_type"`
	Priority int               `json:"priority"` // 越大越优先
	Reason   string            `json:"reason"`
}

// OptimizationPlan optimizeUserStorage 的返回结构，估算值为启发式而非测量值.
type OptimizationPlan struct {
	Recommendations       []MigrationRecommendation `json:"recommendations"`
	EstimatedSavingsBytes int64                     `json:"estimated_savings_bytes"`
	EstimatedTimeMinutes  int                       `json:"estimated_time_minutes"`
}

// MigrationCost calculateMigrationCost 的启发式估算，仅用于展示.
type MigrationCost struct {
	BandwidthMB     int64  `json:"bandwidth_mb"`
	TimeMinutes     int    `json:"time_minutes"`
	ServerResources string `json:"server_resources"` // low / medium / high
	Score           int    `json:"score"`            // 1-10，越高越推荐
}
