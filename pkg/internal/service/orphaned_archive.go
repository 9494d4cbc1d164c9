package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// ArchiveRequest 归档一份转写的入参，mediaPath 可选，用于探测时长与大小.
type ArchiveRequest struct {
	UserID           string
	ProjectID        string
	ProjectName      string
	ProjectFolder    string
	MediaID          string
	MediaName        string
	TranscriptionDir string // 待归档的 transcription 目录
	MediaPath        string // 原媒体文件路径（可能已不存在）
}

// deriveTranscriptionID 从项目、媒体与时间戳派生归档标识，字段缺失时退回 uuid.
func deriveTranscriptionID(projectID, mediaID string, ts time.Time) string {
	if projectID == "" || mediaID == "" {
		return uuid.NewString()
	}

	return fmt.Sprintf("%s_%s_%d", projectID, mediaID, ts.UnixMilli())
}

// ArchiveTranscription 把被删除媒体的转写目录搬入归档区并登记索引.
// 目录名与 orphanedFrom 元数据都携带来源身份，重建索引时优先读元数据.
func (s *OrphanedService) ArchiveTranscription(ctx context.Context, req ArchiveRequest) (*types.OrphanedTranscription, error) {
	if req.UserID == "" || req.MediaName == "" {
		return nil, fmt.Errorf("user id and media name are required")
	}

	if _, err := s.Initialize(req.UserID); err != nil {
		return nil, err
	}

	if _, err := os.Stat(req.TranscriptionDir); err != nil {
		return nil, fmt.Errorf("transcription directory not accessible: %w", err)
	}

	now := time.Now()
	transcriptionID := deriveTranscriptionID(req.ProjectID, req.MediaID, now)
	archiveDir := filepath.Join(s.layout.OrphanedDir(req.UserID),
		fmt.Sprintf("orphaned_%s_%s_%d", req.ProjectID, req.MediaID, now.UnixMilli()))

	if err := os.MkdirAll(filepath.Dir(archiveDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare archive directory: %w", err)
	}

	// 物理搬移转写目录到归档位置
	target := filepath.Join(archiveDir, "transcription")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(req.TranscriptionDir, target); err != nil {
		return nil, fmt.Errorf("failed to move transcription into archive: %w", err)
	}

	// 把来源元数据写进归档内的 data.json
	if err := s.stampOrphanedFrom(target, types.OrphanedFrom{
		ProjectID:   req.ProjectID,
		ProjectName: req.ProjectName,
		MediaID:     req.MediaID,
		MediaName:   req.MediaName,
		OrphanedAt:  now,
	}); err != nil {
		nlog.Logger().Warn().Err(err).Str("dir", target).Msg("failed to stamp orphanedFrom metadata")
	}

	// 尽力而为的媒体属性
	var duration float64

	var mediaSize int64

	if req.MediaPath != "" {
		if info, err := os.Stat(req.MediaPath); err == nil {
			mediaSize = info.Size()
		}

		if d, ok := s.prober.DurationOf(ctx, req.MediaPath); ok {
			duration = d
		}
	}

	record := types.OrphanedTranscription{
		TranscriptionID: transcriptionID,
		ProjectID:       req.ProjectID,
		ProjectName:     req.ProjectName,
		ProjectFolder:   req.ProjectFolder,
		MediaID:         req.MediaID,
		MediaName:       req.MediaName,
		MediaDuration:   duration,
		MediaSize:       mediaSize,
		OrphanedAt:      now,
		ArchivedPath:    archiveDir,
		ArchivedSize:    CalculateDirectorySize(archiveDir),
	}

	if err := s.AddOrphanedTranscription(req.UserID, record); err != nil {
		return nil, err
	}

	nlog.Logger().Info().
		Str("user", req.UserID).
		Str("media", req.MediaName).
		Str("archive", archiveDir).
		Msg("transcription archived")

	return &record, nil
}

// stampOrphanedFrom 往归档的 data.json 写入 orphanedFrom 块.
func (s *OrphanedService) stampOrphanedFrom(transcriptionDir string, from types.OrphanedFrom) error {
	dataPath := filepath.Join(transcriptionDir, "data.json")

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("failed to read transcription data: %w", err)
	}

	var data types.TranscriptionData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode transcription data: %w", err)
	}

	data.OrphanedFrom = &from

	out, err := sonic.MarshalIndent(&data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcription data: %w", err)
	}

	return os.WriteFile(dataPath, out, 0o644)
}
