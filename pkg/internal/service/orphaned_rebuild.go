package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// RebuildIndex 从归档目录全量重建索引，索引文件丢失或损坏时的灾难恢复路径.
// 每个 orphaned_/orphan_ 前缀的条目优先读内嵌的 orphanedFrom 元数据，
// 目录名解析只作为遗留数据的兜底；两者都解析不出的条目跳过并计数.
func (s *OrphanedService) RebuildIndex(userID string) (types.RebuildResult, error) {
	result := types.RebuildResult{}

	orphanedDir := s.layout.OrphanedDir(userID)

	entries, err := os.ReadDir(orphanedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}

		return result, fmt.Errorf("failed to read orphaned directory: %w", err)
	}

	index := &types.OrphanedIndex{
		Version:        orphanedIndexVersion,
		Transcriptions: make(map[string][]types.OrphanedTranscription),
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "orphaned_") && !strings.HasPrefix(name, "orphan_") {
			continue
		}

		path := filepath.Join(orphanedDir, name)

		record, err := s.recoverRecord(path, name, entry.IsDir())
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))

			continue
		}

		key := strings.ToLower(record.MediaName)
		index.Transcriptions[key] = append(index.Transcriptions[key], *record)
		result.Recovered++
	}

	if err := s.saveIndex(userID, index); err != nil {
		return result, err
	}

	nlog.Logger().Info().
		Str("user", userID).
		Int("recovered", result.Recovered).
		Int("skipped", result.Skipped).
		Msg("orphaned index rebuilt")

	return result, nil
}

// recoverRecord 从单个归档条目还原索引记录.
func (s *OrphanedService) recoverRecord(path, name string, isDir bool) (*types.OrphanedTranscription, error) {
	record := types.OrphanedTranscription{
		ArchivedPath: path,
		ArchivedSize: CalculateDirectorySize(path),
	}

	// 优先：归档内嵌的来源元数据
	if data, err := readArchivedData(path); err == nil && data.OrphanedFrom != nil {
		from := data.OrphanedFrom
		record.ProjectID = from.ProjectID
		record.ProjectName = from.ProjectName
		record.MediaID = from.MediaID
		record.MediaName = from.MediaName
		record.OrphanedAt = from.OrphanedAt
		record.TranscriptionID = deriveTranscriptionID(from.ProjectID, from.MediaID, from.OrphanedAt)

		return &record, nil
	}

	// 兜底：目录名模式解析
	if err := parseArchiveName(name, &record); err != nil {
		return nil, err
	}

	record.TranscriptionID = deriveTranscriptionID(record.ProjectID, record.MediaID, record.OrphanedAt)

	// 旧格式的单文件归档没有内部结构可验证
	if isDir {
		if _, err := os.Stat(filepath.Join(path, "transcription", "data.json")); err != nil {
			return nil, fmt.Errorf("archive has no transcription data")
		}
	}

	return &record, nil
}

// parseArchiveName 解析归档目录名.
// 新格式 orphaned_<projectId>_<mediaId>_<ts>，旧格式 orphan_<ts>_<name>.
func parseArchiveName(name string, record *types.OrphanedTranscription) error {
	switch {
	case strings.HasPrefix(name, "orphaned_"):
		parts := strings.Split(strings.TrimPrefix(name, "orphaned_"), "_")
		if len(parts) < 3 {
			return fmt.Errorf("unparseable archive name %q", name)
		}

		ms, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			return fmt.Errorf("unparseable timestamp in %q", name)
		}

		record.ProjectID = parts[0]
		record.MediaID = strings.Join(parts[1:len(parts)-1], "_")
		record.MediaName = record.MediaID
		record.OrphanedAt = time.UnixMilli(ms)

		return nil
	case strings.HasPrefix(name, "orphan_"):
		parts := strings.SplitN(strings.TrimPrefix(name, "orphan_"), "_", 2)
		if len(parts) < 2 {
			return fmt.Errorf("unparseable archive name %q", name)
		}

		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("unparseable timestamp in %q", name)
		}

		record.MediaName = parts[1]
		record.OrphanedAt = time.UnixMilli(ms)

		return nil
	}

	return fmt.Errorf("unknown archive prefix in %q", name)
}
