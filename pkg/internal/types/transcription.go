package types

import "time"

// TranscriptionData transcription/data.json 的磁盘格式.
// 块内容由编辑器定义，这里只关心 id 与 _source 两个键，其余原样保留.
type TranscriptionData struct {
	Blocks       []map[string]any `json:"blocks"`
	Speakers     []any            `json:"speakers,omitempty"`
	Remarks      []any            `json:"remarks,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	LastModified time.Time        `json:"lastModified"`
	// 归档时写入的来源元数据，活跃项目中的数据没有该块
	OrphanedFrom *OrphanedFrom `json:"orphanedFrom,omitempty"`
	// append 模式恢复的历史，按来源转写去重的依据
	MergeHistory []MergeRecord `json:"mergeHistory,omitempty"`
}

// MergeRecord 一次 append 恢复的记录.
type MergeRecord struct {
	TranscriptionID string    `json:"transcriptionId"`
	MergedAt        time.Time `json:"mergedAt"`
	BlocksAdded     int       `json:"blocksAdded"`
}
