package types

// ChunkFileResult chunkFile 的返回结构.
type ChunkFileResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	MediaID     string `json:"media_id"`
	TotalChunks int    `json:"total_chunks"`
	TotalSize   int64  `json:"total_size"`
}

// StoreChunkResult storeChunk 的返回结构.
type StoreChunkResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ChunkID string `json:"chunk_id,omitempty"`
}

// ChunkProgress 已完成/总分块数比例.
type ChunkProgress struct {
	CompletedChunks int     `json:"completed_chunks"`
	TotalChunks     int     `json:"total_chunks"`
	Percent         float64 `json:"percent"`
	IsComplete      bool    `json:"is_complete"`
}

// ResumeInfo resumeUpload 的返回结构：缺失分块与是否可续传.
type ResumeInfo struct {
	CanResume     bool  `json:"can_resume"`
	MissingChunks []int `json:"missing_chunks"`
	TotalChunks   int   `json:"total_chunks"`
}

// IntegrityReport verifyChunkIntegrity 的返回结构，缺失与损坏分开上报.
type IntegrityReport struct {
	IsValid         bool  `json:"is_valid"`
	TotalChunks     int   `json:"total_chunks"`
	MissingChunks   []int `json:"missing_chunks"`
	CorruptedChunks []int `json:"corrupted_chunks"`
}

// CleanupResult cleanupOrphanedChunks 的返回结构，逐目录的错误不中断整体清理.
type CleanupResult struct {
	DirsRemoved    int      `json:"dirs_removed"`
	RecordsRemoved int      `json:"records_removed"`
	BytesFreed     int64    `json:"bytes_freed"`
	Errors         []string `json:"errors,omitempty"`
}

// ChunkStorageStats 用户分块存储的聚合统计.
type ChunkStorageStats struct {
	TotalFiles  int   `json:"total_files"`
	TotalChunks int   `json:"total_chunks"`
	TotalBytes  int64 `json:"total_bytes"`
}
