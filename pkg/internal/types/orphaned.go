package types

import "time"

// OrphanedTranscription 孤儿转写记录：项目或媒体删除后保留下来的转写数据.
// JSON 字段名与磁盘上的 orphaned-index.json 格式保持一致（camelCase）.
type OrphanedTranscription struct {
	TranscriptionID string `json:"transcriptionId"` // 由项目、媒体与时间戳派生
	ProjectID       string `json:"projectId"`
	ProjectName     string `json:"projectName,omitempty"`
	ProjectFolder   string `json:"projectFolder,omitempty"`
	MediaID         string `json:"mediaId"`
	MediaName       string `json:"mediaName"`
	// 尽力而为的媒体属性，探测失败时为 0
	MediaDuration float64   `json:"mediaDuration,omitempty"`
	MediaSize     int64     `json:"mediaSize,omitempty"`
	OrphanedAt    time.Time `json:"orphanedAt"`
	// 归档目录，或旧格式的单文件路径
	ArchivedPath string `json:"archivedPath"`
	ArchivedSize int64  `json:"archivedSize"`
}

// OrphanedIndex orphaned-index.json 的序列化形式.
// transcriptions 以小写媒体名为键，桶内按 transcriptionId 唯一.
type OrphanedIndex struct {
	Version        int                                `json:"version"`
	LastUpdated    time.Time                          `json:"lastUpdated"`
	Transcriptions map[string][]OrphanedTranscription `json:"transcriptions"`
}

// OrphanedFrom 归档目录内随转写数据一起保存的来源元数据块，
// 重建索引时优先于目录名解析.
type OrphanedFrom struct {
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName,omitempty"`
	MediaID     string    `json:"mediaId"`
	MediaName   string    `json:"mediaName"`
	OrphanedAt  time.Time `json:"orphanedAt"`
}

// DuplicateCheckResult checkForDuplicateMedia 的返回结构.
type DuplicateCheckResult struct {
	HasDuplicates bool                    `json:"has_duplicates"`
	Matches       []OrphanedTranscription `json:"matches,omitempty"`
}

// RestoreMode 恢复模式：覆盖目标转写，或按块合并追加.
type RestoreMode string

const (
	RestoreOverride RestoreMode = "override"
	RestoreAppend   RestoreMode = "append"
)

// RestoreResult 恢复操作的返回结构.
type RestoreResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	BlocksRestored int    `json:"blocks_restored"`
	TotalBlocks    int    `json:"total_blocks"`
}

// RebuildResult rebuildIndex 的返回结构.
type RebuildResult struct {
	Recovered int      `json:"recovered"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}
