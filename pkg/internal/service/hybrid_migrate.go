package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// failedResult 统一的失败返回，公开迁移方法从不向上抛预期错误.
func failedResult(migrationID, format string, args ...any) types.MigrationResult {
	return types.MigrationResult{
		Success:     false,
		MigrationID: migrationID,
		State:       model.MigrationFailed,
		Error:       fmt.Sprintf(format, args...),
	}
}

// MigrateToServer 把媒体迁移到服务器单文件层级.
// 已在 server 层级时幂等返回 completed 且零字节传输，不碰文件系统.
func (s *HybridService) MigrateToServer(ctx context.Context, mediaID, userID string, onProgress func(float64)) types.MigrationResult {
	info, err := s.GetMediaStorageInfo(ctx, mediaID, userID)
	if err != nil {
		return failedResult("", "%v", err)
	}

	if info == nil {
		return failedResult("", "media %s not found", mediaID)
	}

	if info.StorageType == model.StorageServer {
		return types.MigrationResult{Success: true, State: model.MigrationCompleted, BytesTransferred: 0}
	}

	// 目标是服务器磁盘，入库前检查配额
	check, err := s.quota.CanUserUpload(ctx, userID, info.FileSize)
	if err != nil {
		return failedResult("", "quota check failed: %v", err)
	}

	if info.StorageType == model.StorageLocal && !check.CanUpload {
		return failedResult("", "%s", check.Message)
	}

	record, err := s.beginMigration(ctx, mediaID, userID, info.StorageType, model.StorageServer, migrationSettings{})
	if err != nil {
		return failedResult("", "%v", err)
	}

	serverDir := s.layout.MediaDir(userID, mediaID)
	serverPath := filepath.Join(serverDir, info.FileName)

	var bytesTransferred int64

	switch info.StorageType {
	case model.StorageLocal:
		bytesTransferred, err = s.copyWithProgress(ctx, record, info.LocalPath, serverPath, info.FileSize, onProgress)
	case model.StorageServerChunked:
		bytesTransferred, err = s.assembleToFile(ctx, mediaID, userID, serverPath)
	default:
		err = fmt.Errorf("unsupported source tier %q", info.StorageType)
	}

	if err != nil {
		s.finishMigration(ctx, record, model.MigrationFailed, err.Error())

		return failedResult(record.MigrationID, "%v", err)
	}

	// 源是分块表示时，迁走后分块集随之删除
	if info.StorageType == model.StorageServerChunked {
		if err := s.chunks.DeleteMediaChunks(ctx, mediaID, userID); err != nil {
			nlog.Logger().Warn().Err(err).Str("media", mediaID).Msg("failed to remove chunk set after migration")
		}
	}

	if err := s.updateMediaTier(ctx, mediaID, userID, model.StorageServer, map[string]any{"server_path": serverPath}); err != nil {
		s.finishMigration(ctx, record, model.MigrationFailed, err.Error())

		return failedResult(record.MigrationID, "%v", err)
	}

	s.finishMigration(ctx, record, model.MigrationCompleted, "")

	return types.MigrationResult{
		Success:          true,
		MigrationID:      record.MigrationID,
		State:            model.MigrationCompleted,
		BytesTransferred: bytesTransferred,
	}
}

// MigrateToLocal 把媒体迁移到用户机器的本地层级.
// 目标目录先验证可访问；大文件从分块表示以流方式搬出以约束内存.
func (s *HybridService) MigrateToLocal(ctx context.Context, mediaID, userID, localPath, computerID string) types.MigrationResult {
	info, err := s.GetMediaStorageInfo(ctx, mediaID, userID)
	if err != nil {
		return failedResult("", "%v", err)
	}

	if info == nil {
		return failedResult("", "media %s not found", mediaID)
	}

	if info.StorageType == model.StorageLocal {
		return types.MigrationResult{Success: true, State: model.MigrationCompleted, BytesTransferred: 0}
	}

	dirInfo, err := os.Stat(localPath)
	if err != nil || !dirInfo.IsDir() {
		return failedResult("", "destination directory %s not accessible", localPath)
	}

	if computerID == "" {
		if host, err := os.Hostname(); err == nil {
			computerID = host
		}
	}

	record, err := s.beginMigration(ctx, mediaID, userID, info.StorageType, model.StorageLocal,
		migrationSettings{LocalPath: localPath, ComputerID: computerID})
	if err != nil {
		return failedResult("", "%v", err)
	}

	destPath := filepath.Join(localPath, info.FileName)

	var bytesTransferred int64

	switch info.StorageType {
	case model.StorageServer:
		bytesTransferred, err = s.copyWithProgress(ctx, record, info.ServerPath, destPath, info.FileSize, nil)
	case model.StorageServerChunked:
		bytesTransferred, err = s.streamChunksToFile(ctx, mediaID, userID, destPath)
	default:
		err = fmt.Errorf("unsupported source tier %q", info.StorageType)
	}

	if err != nil {
		s.finishMigration(ctx, record, model.MigrationFailed, err.Error())

		return failedResult(record.MigrationID, "%v", err)
	}

	if err := s.updateMediaTier(ctx, mediaID, userID, model.StorageLocal, map[string]any{
		"original_path": destPath,
		"computer_id":   computerID,
	}); err != nil {
		s.finishMigration(ctx, record, model.MigrationFailed, err.Error())

		return failedResult(record.MigrationID, "%v", err)
	}

	s.finishMigration(ctx, record, model.MigrationCompleted, "")

	return types.MigrationResult{
		Success:          true,
		MigrationID:      record.MigrationID,
		State:            model.MigrationCompleted,
		BytesTransferred: bytesTransferred,
	}
}

// MigrateToChunked 把媒体迁移到分块层级，切分逻辑委托给 ChunkService.
// 已是分块表示时幂等返回.
func (s *HybridService) MigrateToChunked(ctx context.Context, mediaID, userID string, onProgress func(float64)) types.MigrationResult {
	info, err := s.GetMediaStorageInfo(ctx, mediaID, userID)
	if err != nil {
		return failedResult("", "%v", err)
	}

	if info == nil {
		return failedResult("", "media %s not found", mediaID)
	}

	if info.StorageType == model.StorageServerChunked {
		return types.MigrationResult{Success: true, State: model.MigrationCompleted, BytesTransferred: 0}
	}

	// 源文件：本地路径或服务器路径
	sourcePath := info.LocalPath
	if info.StorageType == model.StorageServer {
		sourcePath = info.ServerPath
	}

	if sourcePath == "" {
		return failedResult("", "no source path recorded for media %s", mediaID)
	}

	record, err := s.beginMigration(ctx, mediaID, userID, info.StorageType, model.StorageServerChunked, migrationSettings{})
	if err != nil {
		return failedResult("", "%v", err)
	}

	chunkResult := s.chunks.ChunkFile(ctx, sourcePath, mediaID, userID, info.FileName)
	if !chunkResult.Success {
		s.finishMigration(ctx, record, model.MigrationFailed, chunkResult.Error)

		return failedResult(record.MigrationID, "%s", chunkResult.Error)
	}

	s.updateProgress(ctx, record, 90, onProgress)

	// 服务器单文件被分块表示取代，删掉源文件并把配额增量冲回
	if info.StorageType == model.StorageServer {
		if err := os.Remove(info.ServerPath); err != nil && !os.IsNotExist(err) {
			nlog.Logger().Warn().Err(err).Str("path", info.ServerPath).Msg("failed to remove server file after chunking")
		} else if err := s.quota.IncrementUsedStorage(ctx, userID, -info.FileSize); err != nil {
			nlog.Logger().Warn().Err(err).Str("user", userID).Msg("failed to adjust quota after chunking")
		}
	}

	if err := s.updateMediaTier(ctx, mediaID, userID, model.StorageServerChunked, nil); err != nil {
		s.finishMigration(ctx, record, model.MigrationFailed, err.Error())

		return failedResult(record.MigrationID, "%v", err)
	}

	s.finishMigration(ctx, record, model.MigrationCompleted, "")

	return types.MigrationResult{
		Success:          true,
		MigrationID:      record.MigrationID,
		State:            model.MigrationCompleted,
		BytesTransferred: chunkResult.TotalSize,
	}
}

// updateMediaTier 更新媒体行的存储层级与层级相关列.
func (s *HybridService) updateMediaTier(ctx context.Context, mediaID, userID string, tier model.StorageType, extra map[string]any) error {
	updates := map[string]any{"storage_type": tier}
	for k, v := range extra {
		updates[k] = v
	}

	if err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.MediaFile{}).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update media storage type: %w", err)
	}

	return nil
}

// copyWithProgress 流式拷贝并按已拷贝字节比例上报进度.
func (s *HybridService) copyWithProgress(ctx context.Context, record *model.StorageMigration, srcPath, destPath string, totalSize int64, onProgress func(float64)) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source %s: %w", srcPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination %s: %w", destPath, err)
	}
	defer dest.Close()

	var copied int64

	buf := make([]byte, 1<<20)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dest.Write(buf[:n]); writeErr != nil {
				return copied, fmt.Errorf("failed to write destination: %w", writeErr)
			}

			copied += int64(n)

			if totalSize > 0 {
				s.updateProgress(ctx, record, float64(copied)/float64(totalSize)*100, onProgress)
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return copied, fmt.Errorf("failed to read source: %w", readErr)
		}
	}

	return copied, dest.Sync()
}

// assembleToFile 全量重组到内存后单次写入（chunked → server 路径）.
func (s *HybridService) assembleToFile(ctx context.Context, mediaID, userID, destPath string) (int64, error) {
	data, err := s.chunks.AssembleChunks(ctx, mediaID, userID)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write assembled file: %w", err)
	}

	return int64(len(data)), nil
}

// streamChunksToFile 以流的方式重组到目标文件（chunked → local 路径），内存有界.
func (s *HybridService) streamChunksToFile(ctx context.Context, mediaID, userID, destPath string) (int64, error) {
	stream, err := s.chunks.AssembleChunksStream(ctx, mediaID, userID)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination %s: %w", destPath, err)
	}
	defer dest.Close()

	copied, err := io.Copy(dest, stream)
	if err != nil {
		return copied, fmt.Errorf("failed to stream chunks: %w", err)
	}

	return copied, dest.Sync()
}
