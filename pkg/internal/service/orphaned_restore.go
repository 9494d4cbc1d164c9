package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// findByID 按 transcriptionId 在所有桶里查找记录.
func (s *OrphanedService) findByID(userID, transcriptionID string) (*types.OrphanedTranscription, error) {
	index, err := s.Initialize(userID)
	if err != nil {
		return nil, err
	}

	for _, bucket := range index.Transcriptions {
		for i := range bucket {
			if bucket[i].TranscriptionID == transcriptionID {
				record := bucket[i]

				return &record, nil
			}
		}
	}

	return nil, nil
}

// readArchivedData 读取归档的转写数据，目录格式找 transcription/data.json，
// 旧格式的归档就是单个 JSON 文件.
func readArchivedData(archivedPath string) (*types.TranscriptionData, error) {
	info, err := os.Stat(archivedPath)
	if err != nil {
		return nil, fmt.Errorf("archived path not accessible: %w", err)
	}

	dataPath := archivedPath
	if info.IsDir() {
		dataPath = filepath.Join(archivedPath, "transcription", "data.json")
	}

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived transcription: %w", err)
	}

	var data types.TranscriptionData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode archived transcription: %w", err)
	}

	return &data, nil
}

// RestoreTranscription 把归档的转写恢复到目标项目/媒体.
// override 模式逐字还原 blocks；append 模式合并追加并打 _source 标记.
// 同一归档在 append 模式下的二次恢复按来源转写去重，直接拒绝.
// 恢复成功后移除索引记录并删除归档目录.
func (s *OrphanedService) RestoreTranscription(userID, transcriptionID, targetProjectID, targetMediaID string, mode types.RestoreMode) types.RestoreResult {
	record, err := s.findByID(userID, transcriptionID)
	if err != nil {
		return types.RestoreResult{Success: false, Error: err.Error()}
	}

	if record == nil {
		return types.RestoreResult{Success: false, Error: fmt.Sprintf("orphaned transcription %s not found", transcriptionID)}
	}

	archived, err := readArchivedData(record.ArchivedPath)
	if err != nil {
		return types.RestoreResult{Success: false, Error: err.Error()}
	}

	targetDir := filepath.Join(s.layout.ProjectsDir(userID), targetProjectID, "media", targetMediaID, "transcription")
	targetPath := filepath.Join(targetDir, "data.json")

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return types.RestoreResult{Success: false, Error: fmt.Sprintf("failed to create target directory: %v", err)}
	}

	var result types.RestoreResult

	switch mode {
	case types.RestoreAppend:
		result = s.restoreAppend(targetPath, transcriptionID, archived)
	case types.RestoreOverride:
		result = restoreOverride(targetPath, archived)
	default:
		return types.RestoreResult{Success: false, Error: fmt.Sprintf("unknown restore mode %q", mode)}
	}

	if !result.Success {
		return result
	}

	// 恢复成功：移除索引记录并清掉归档目录
	if _, err := s.RemoveOrphanedTranscription(userID, transcriptionID); err != nil {
		nlog.Logger().Warn().Err(err).Str("id", transcriptionID).Msg("failed to remove restored record from index")
	}

	if err := os.RemoveAll(record.ArchivedPath); err != nil {
		nlog.Logger().Warn().Err(err).Str("path", record.ArchivedPath).Msg("failed to remove archive after restore")
	}

	nlog.Logger().Info().
		Str("user", userID).
		Str("id", transcriptionID).
		Str("mode", string(mode)).
		Int("blocks", result.BlocksRestored).
		Msg("transcription restored")

	return result
}

// restoreOverride 逐字还原：归档数据去掉来源元数据后整体写入目标.
func restoreOverride(targetPath string, archived *types.TranscriptionData) types.RestoreResult {
	data := *archived
	data.OrphanedFrom = nil
	data.LastModified = time.Now()

	if err := writeTranscription(targetPath, &data); err != nil {
		return types.RestoreResult{Success: false, Error: err.Error()}
	}

	return types.RestoreResult{
		Success:        true,
		BlocksRestored: len(data.Blocks),
		TotalBlocks:    len(data.Blocks),
	}
}

// restoreAppend 合并追加：现有块打 original 标记，归档块改 id 加 restored 标记.
func (s *OrphanedService) restoreAppend(targetPath, transcriptionID string, archived *types.TranscriptionData) types.RestoreResult {
	existing := &types.TranscriptionData{Blocks: []map[string]any{}}

	if raw, err := os.ReadFile(targetPath); err == nil {
		if err := sonic.Unmarshal(raw, existing); err != nil {
			return types.RestoreResult{Success: false, Error: fmt.Sprintf("failed to decode target transcription: %v", err)}
		}
	}

	// 同一来源只允许合并一次
	for _, merged := range existing.MergeHistory {
		if merged.TranscriptionID == transcriptionID {
			return types.RestoreResult{
				Success: false,
				Error:   fmt.Sprintf("transcription %s already merged into target", transcriptionID),
			}
		}
	}

	for _, block := range existing.Blocks {
		if _, ok := block["_source"]; !ok {
			block["_source"] = "original"
		}
	}

	now := time.Now()

	restored := make([]map[string]any, 0, len(archived.Blocks))

	for i, block := range archived.Blocks {
		merged := make(map[string]any, len(block)+1)
		for k, v := range block {
			merged[k] = v
		}

		merged["id"] = fmt.Sprintf("%v-restored-%d-%d", block["id"], now.UnixMilli(), i)
		merged["_source"] = "restored"

		restored = append(restored, merged)
	}

	existing.Blocks = append(existing.Blocks, restored...)
	existing.MergeHistory = append(existing.MergeHistory, types.MergeRecord{
		TranscriptionID: transcriptionID,
		MergedAt:        now,
		BlocksAdded:     len(restored),
	})
	existing.LastModified = now

	if err := writeTranscription(targetPath, existing); err != nil {
		return types.RestoreResult{Success: false, Error: err.Error()}
	}

	return types.RestoreResult{
		Success:        true,
		BlocksRestored: len(restored),
		TotalBlocks:    len(existing.Blocks),
	}
}

// writeTranscription 序列化并写入 data.json.
func writeTranscription(path string, data *types.TranscriptionData) error {
	out, err := sonic.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcription data: %w", err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write transcription data: %w", err)
	}

	return nil
}
