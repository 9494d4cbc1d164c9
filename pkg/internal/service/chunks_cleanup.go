package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
	"github.com/yeisme/transvault/pkg/metrics"
)

// CleanupOrphanedChunks 对账磁盘分块目录与 DB 记录.
// 没有对应 DB 记录且修改时间早于 chunk_orphan_age 的目录被删除并统计释放字节；
// 同龄的不完整分块集 DB 行一并清除.userID 为空时扫描所有用户.
// 逐目录的错误只累积上报，不中断整体清理.
func (s *ChunkService) CleanupOrphanedChunks(ctx context.Context, userID string) (types.CleanupResult, error) {
	result := types.CleanupResult{}

	users, err := s.cleanupTargets(userID)
	if err != nil {
		return result, err
	}

	cutoff := time.Now().Add(-s.cfg.ChunkOrphanAge)

	for _, uid := range users {
		s.cleanupUserChunks(ctx, uid, cutoff, &result)
	}

	// 清除超龄且不完整的分块集记录
	tx := s.dbClient.GetDB().WithContext(ctx).
		Where("is_complete = ? AND updated_at < ?", false, cutoff)
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}

	if res := tx.Delete(&model.ChunkMetadata{}); res.Error != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to purge stale chunk records: %v", res.Error))
	} else {
		result.RecordsRemoved = int(res.RowsAffected)
	}

	metrics.CleanupBytesFreed.Add(float64(result.BytesFreed))

	nlog.Logger().Info().
		Int("dirs_removed", result.DirsRemoved).
		Int("records_removed", result.RecordsRemoved).
		Int64("bytes_freed", result.BytesFreed).
		Int("errors", len(result.Errors)).
		Msg("orphaned chunk cleanup finished")

	return result, nil
}

// cleanupTargets 目标用户列表：指定用户或存储根下的全部用户目录.
func (s *ChunkService) cleanupTargets(userID string) ([]string, error) {
	if userID != "" {
		return []string{userID}, nil
	}

	entries, err := os.ReadDir(s.layout.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	users := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			users = append(users, entry.Name())
		}
	}

	return users, nil
}

// cleanupUserChunks 清理单个用户的孤儿分块目录.
func (s *ChunkService) cleanupUserChunks(ctx context.Context, userID string, cutoff time.Time, result *types.CleanupResult) {
	chunksDir := s.layout.ChunksDir(userID)

	entries, err := os.ReadDir(chunksDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("read %s: %v", chunksDir, err))
		}

		return
	}

	// DB 中有记录的媒体集合
	var mediaIDs []string
	if err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.ChunkMetadata{}).
		Where("user_id = ?", userID).
		Pluck("media_id", &mediaIDs).Error; err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list chunk records for %s: %v", userID, err))

		return
	}

	known := make(map[string]struct{}, len(mediaIDs))
	for _, id := range mediaIDs {
		known[id] = struct{}{}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, ok := known[entry.Name()]; ok {
			continue
		}

		dir := filepath.Join(chunksDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stat %s: %v", dir, err))

			continue
		}

		// 未超龄的孤儿目录可能属于进行中的上传，留到下一轮
		if info.ModTime().After(cutoff) {
			continue
		}

		size := CalculateDirectorySize(dir)

		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", dir, err))

			continue
		}

		result.DirsRemoved++
		result.BytesFreed += size
	}
}
