package service

import (
	"context"
	"crypto/md5" //nolint:gosec // 内容指纹，不用于安全目的
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/transvault/pkg/configs"
	ctxPkg "github.com/yeisme/transvault/pkg/context"
	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/storage/db"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
	"github.com/yeisme/transvault/pkg/metrics"
)

// ChunkService 大文件分块存储：切分、断点续传、重组、校验与清理.
type ChunkService struct {
	dbClient *db.Client
	layout   Layout
	cfg      *configs.StorageConfig
	quota    *QuotaService
}

// NewChunkService 创建分块服务，配额检查委托给 QuotaService.
func NewChunkService(c context.Context, quota *QuotaService) *ChunkService {
	return &ChunkService{
		dbClient: ctxPkg.GetDBClient(c),
		layout:   NewLayout(),
		cfg:      &configs.GetConfig().Storage,
		quota:    quota,
	}
}

// ChunkFile 把源文件切分为固定大小的分块写入磁盘，并持久化一行分块元数据.
// 配额拒绝发生在任何磁盘写入之前；任何分块写入失败都会整体回滚，
// 不会留下部分持久化的分块集.
func (s *ChunkService) ChunkFile(ctx context.Context, path, mediaID, userID, originalName string) types.ChunkFileResult {
	fail := func(format string, args ...any) types.ChunkFileResult {
		return types.ChunkFileResult{Success: false, Error: fmt.Sprintf(format, args...), MediaID: mediaID}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail("source file not accessible: %v", err)
	}

	if originalName == "" {
		originalName = info.Name()
	}

	// 配额检查先于任何写入
	check, err := s.quota.CanUserUpload(ctx, userID, info.Size())
	if err != nil {
		return fail("quota check failed: %v", err)
	}

	if !check.CanUpload {
		return fail("%s", check.Message)
	}

	chunkDir := s.layout.MediaChunkDir(userID, mediaID)
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return fail("failed to create chunk directory: %v", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return fail("failed to open source file: %v", err)
	}
	defer src.Close()

	records, fileChecksum, err := s.writeChunks(src, chunkDir, mediaID)
	if err != nil {
		// 不留部分结果
		if rmErr := os.RemoveAll(chunkDir); rmErr != nil {
			nlog.Logger().Warn().Err(rmErr).Str("dir", chunkDir).Msg("failed to remove partial chunk directory")
		}

		return fail("chunking failed: %v", err)
	}

	meta := model.ChunkMetadata{
		MediaID:          mediaID,
		UserID:           userID,
		OriginalFilename: originalName,
		OriginalSize:     info.Size(),
		TotalChunks:      len(records),
		ChunkSize:        s.cfg.ChunkSize,
		Checksum:         fileChecksum,
		IsComplete:       true,
	}
	if err := meta.SetChunks(records); err != nil {
		return fail("%v", err)
	}

	err = s.dbClient.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "media_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"original_filename": meta.OriginalFilename,
				"original_size":     meta.OriginalSize,
				"total_chunks":      meta.TotalChunks,
				"chunk_size":        meta.ChunkSize,
				"checksum":          meta.Checksum,
				"chunk_info_json":   meta.ChunkInfoJSON,
				"is_complete":       true,
				"updated_at":        time.Now(),
			}),
		}).
		Create(&meta).Error
	if err != nil {
		return fail("failed to persist chunk metadata: %v", err)
	}

	if err := s.quota.IncrementUsedStorage(ctx, userID, info.Size()); err != nil {
		nlog.Logger().Warn().Err(err).Str("user", userID).Msg("failed to increment quota after chunking")
	}

	metrics.ChunkBytesWritten.Add(float64(info.Size()))

	nlog.Logger().Info().
		Str("media", mediaID).
		Str("user", userID).
		Int("chunks", len(records)).
		Int64("size", info.Size()).
		Msg("file chunked")

	return types.ChunkFileResult{
		Success:     true,
		MediaID:     mediaID,
		TotalChunks: len(records),
		TotalSize:   info.Size(),
	}
}

// writeChunks 顺序读取源并落盘每个分块，返回分块记录与整文件 MD5.
func (s *ChunkService) writeChunks(src io.Reader, chunkDir, mediaID string) ([]model.ChunkRecord, string, error) {
	fileHash := md5.New() //nolint:gosec
	buf := make([]byte, s.cfg.ChunkSize)
	records := make([]model.ChunkRecord, 0)

	for index := 0; ; index++ {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			data := buf[:n]
			fileHash.Write(data)

			record, err := s.writeChunk(chunkDir, mediaID, index, data)
			if err != nil {
				return nil, "", err
			}

			records = append(records, record)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}

			return nil, "", fmt.Errorf("failed to read source: %w", readErr)
		}
	}

	return records, hex.EncodeToString(fileHash.Sum(nil)), nil
}

// writeChunk 写单个分块文件并生成记录.
func (s *ChunkService) writeChunk(chunkDir, mediaID string, index int, data []byte) (model.ChunkRecord, error) {
	chunkPath := filepath.Join(chunkDir, ChunkFileName(mediaID, index))

	if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
		return model.ChunkRecord{}, fmt.Errorf("failed to write chunk %d: %w", index, err)
	}

	sum := md5.Sum(data) //nolint:gosec

	return model.ChunkRecord{
		ChunkIndex: index,
		ChunkID:    ChunkID(mediaID, index),
		Size:       int64(len(data)),
		Checksum:   hex.EncodeToString(sum[:]),
		FilePath:   chunkPath,
		CreatedAt:  time.Now(),
		Stored:     true,
	}, nil
}

// StoreChunk 直接写入单个分块（分块上传 API 使用），不要求已有元数据行.
func (s *ChunkService) StoreChunk(ctx context.Context, data []byte, index int, mediaID, userID string) types.StoreChunkResult {
	if index < 0 {
		return types.StoreChunkResult{Success: false, Error: "chunk index must be non-negative"}
	}

	chunkDir := s.layout.MediaChunkDir(userID, mediaID)
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return types.StoreChunkResult{Success: false, Error: fmt.Sprintf("failed to create chunk directory: %v", err)}
	}

	record, err := s.writeChunk(chunkDir, mediaID, index, data)
	if err != nil {
		return types.StoreChunkResult{Success: false, Error: err.Error()}
	}

	metrics.ChunkBytesWritten.Add(float64(len(data)))

	return types.StoreChunkResult{Success: true, ChunkID: record.ChunkID}
}

// GetChunkInfo 读取分块元数据，不存在时返回 nil 而非错误.
func (s *ChunkService) GetChunkInfo(ctx context.Context, mediaID, userID string) (*model.ChunkMetadata, error) {
	var meta model.ChunkMetadata

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read chunk metadata: %w", err)
	}

	return &meta, nil
}

// GetProgress 返回磁盘上已存在分块与总数的比例.
func (s *ChunkService) GetProgress(ctx context.Context, mediaID, userID string) (types.ChunkProgress, error) {
	meta, err := s.GetChunkInfo(ctx, mediaID, userID)
	if err != nil {
		return types.ChunkProgress{}, err
	}

	if meta == nil {
		return types.ChunkProgress{}, nil
	}

	completed := 0
	chunkDir := s.layout.MediaChunkDir(userID, mediaID)

	for i := 0; i < meta.TotalChunks; i++ {
		if _, err := os.Stat(filepath.Join(chunkDir, ChunkFileName(mediaID, i))); err == nil {
			completed++
		}
	}

	percent := 0.0
	if meta.TotalChunks > 0 {
		percent = float64(completed) / float64(meta.TotalChunks) * 100
	}

	return types.ChunkProgress{
		CompletedChunks: completed,
		TotalChunks:     meta.TotalChunks,
		Percent:         percent,
		IsComplete:      meta.IsComplete && completed == meta.TotalChunks,
	}, nil
}

// ResumeUpload 对比期望分块与磁盘现状，返回缺失序号与能否续传.
func (s *ChunkService) ResumeUpload(ctx context.Context, mediaID, userID string) (types.ResumeInfo, error) {
	meta, err := s.GetChunkInfo(ctx, mediaID, userID)
	if err != nil {
		return types.ResumeInfo{}, err
	}

	if meta == nil {
		return types.ResumeInfo{CanResume: false, MissingChunks: []int{}}, nil
	}

	missing := make([]int, 0)
	chunkDir := s.layout.MediaChunkDir(userID, mediaID)

	for i := 0; i < meta.TotalChunks; i++ {
		if _, err := os.Stat(filepath.Join(chunkDir, ChunkFileName(mediaID, i))); err != nil {
			missing = append(missing, i)
		}
	}

	return types.ResumeInfo{
		CanResume:     true,
		MissingChunks: missing,
		TotalChunks:   meta.TotalChunks,
	}, nil
}

// DeleteMediaChunks 删除分块目录与元数据行，目录已不存在时容忍.
func (s *ChunkService) DeleteMediaChunks(ctx context.Context, mediaID, userID string) error {
	chunkDir := s.layout.MediaChunkDir(userID, mediaID)
	if err := os.RemoveAll(chunkDir); err != nil {
		return fmt.Errorf("failed to remove chunk directory: %w", err)
	}

	if err := s.dbClient.GetDB().WithContext(ctx).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		Delete(&model.ChunkMetadata{}).Error; err != nil {
		return fmt.Errorf("failed to delete chunk metadata: %w", err)
	}

	return nil
}

// GetStorageStats 用户分块存储的聚合统计.
func (s *ChunkService) GetStorageStats(ctx context.Context, userID string) (types.ChunkStorageStats, error) {
	var agg struct {
		Files  int64
		Chunks int64
		Bytes  int64
	}

	err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.ChunkMetadata{}).
		Where("user_id = ?", userID).
		Select("COUNT(*) AS files, COALESCE(SUM(total_chunks),0) AS chunks, COALESCE(SUM(original_size),0) AS bytes").
		Scan(&agg).Error
	if err != nil {
		return types.ChunkStorageStats{}, fmt.Errorf("failed to aggregate chunk metadata: %w", err)
	}

	return types.ChunkStorageStats{
		TotalFiles:  int(agg.Files),
		TotalChunks: int(agg.Chunks),
		TotalBytes:  agg.Bytes,
	}, nil
}

// GetStorageRecommendation 根据文件大小与偏好推荐存储层级.
func (s *ChunkService) GetStorageRecommendation(fileSize int64, prefersOffline bool) types.StorageRecommendation {
	switch {
	case prefersOffline:
		return types.StorageRecommendation{
			Recommended: string(model.StorageLocal),
			Reason:      "offline access preferred",
		}
	case fileSize > s.cfg.LargeFileThreshold:
		return types.StorageRecommendation{
			Recommended: string(model.StorageServerChunked),
			Reason:      "large file, chunked storage allows resumable transfer",
		}
	default:
		return types.StorageRecommendation{
			Recommended: string(model.StorageServer),
			Reason:      "default server storage",
		}
	}
}
