package types

import "time"

// UserStorageInfo 用户配额快照，getUserStorage / forceRefreshUserStorage 的返回结构.
type UserStorageInfo struct {
	UserID       string    `json:"user_id"`
	QuotaLimit   int64     `json:"quota_limit"` // 字节
	QuotaUsed    int64     `json:"quota_used"`  // 字节
	QuotaLimitMB int64     `json:"quota_limit_mb"`
	QuotaUsedMB  int64     `json:"quota_used_mb"`
	UsedPercent  float64   `json:"used_percent"` // 保留一位小数
	UpdatedAt    time.Time `json:"updated_at"`
}

// UploadCheckResult canUserUpload 的返回结构，带拒绝时的数字明细.
type UploadCheckResult struct {
	CanUpload     bool   `json:"can_upload"`
	Message       string `json:"message,omitempty"`
	CurrentUsedMB int64  `json:"current_used_mb"`
	LimitMB       int64  `json:"limit_mb"`
	AvailableMB   int64  `json:"available_mb"`
	RequestedMB   int64  `json:"requested_mb"`
}

// TotalStorageStats 全体用户的聚合统计（管理/报表路径，直接走 DB）.
type TotalStorageStats struct {
	TotalUsers      int     `json:"total_users"`
	TotalQuotaLimit int64   `json:"total_quota_limit"`
	TotalQuotaUsed  int64   `json:"total_quota_used"`
	AvgUsedPercent  float64 `json:"avg_used_percent"`
}

// ClearStorageResult 清空用户存储的结果，删除前先统计大小用于报告.
type ClearStorageResult struct {
	UserID       string   `json:"user_id,omitempty"`
	BytesFreed   int64    `json:"bytes_freed"`
	UsersCleared int      `json:"users_cleared,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// SystemStorageInfo 服务器磁盘空间信息.
type SystemStorageInfo struct {
	TotalBytes     int64 `json:"total_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// StorageRecommendation 根据文件大小与偏好给出的存储层级建议.
type StorageRecommendation struct {
	Recommended string `json:"recommended"` // local / server / server_chunked
	Reason      string `json:"reason"`
}
