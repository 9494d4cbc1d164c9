package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeisme/transvault/pkg/configs"
	ctxPkg "github.com/yeisme/transvault/pkg/context"
	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/storage/db"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
	"github.com/yeisme/transvault/pkg/metrics"
)

// migrationSettings 迁移记录里持久化的层级相关设置.
type migrationSettings struct {
	LocalPath  string `json:"localPath,omitempty"`
	ComputerID string `json:"computerId,omitempty"`
}

// HybridService 存储层级迁移编排：local / server / server_chunked 之间搬移媒体字节，
// 迁移状态机持久化在 DB，进行中的记录同时在内存跟踪以便无须回库就能恢复.
// 进程内只构造一次.
type HybridService struct {
	dbClient *db.Client
	layout   Layout
	cfg      *configs.StorageConfig
	chunks   *ChunkService
	quota    *QuotaService

	mu     sync.Mutex
	active map[string]*model.StorageMigration
}

// NewHybridService 创建迁移编排服务.
func NewHybridService(c context.Context, chunks *ChunkService, quota *QuotaService) *HybridService {
	return &HybridService{
		dbClient: ctxPkg.GetDBClient(c),
		layout:   NewLayout(),
		cfg:      &configs.GetConfig().Storage,
		chunks:   chunks,
		quota:    quota,
		active:   make(map[string]*model.StorageMigration),
	}
}

// GetMediaStorageInfo 读取媒体当前的存储表示，不存在时返回 nil.
func (s *HybridService) GetMediaStorageInfo(ctx context.Context, mediaID, userID string) (*types.MediaStorageInfo, error) {
	var row model.MediaFile

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read media file row: %w", err)
	}

	return &types.MediaStorageInfo{
		MediaID:     row.MediaID,
		UserID:      row.UserID,
		FileName:    row.FileName,
		FileSize:    row.FileSize,
		StorageType: row.StorageType,
		LocalPath:   row.OriginalPath,
		ServerPath:  row.ServerPath,
		ComputerID:  row.ComputerID,
	}, nil
}

// beginMigration 开一条迁移记录（in_progress）并登记到内存跟踪.
func (s *HybridService) beginMigration(ctx context.Context, mediaID, userID string, from, to model.StorageType, settings migrationSettings) (*model.StorageMigration, error) {
	settingsJSON, err := sonic.MarshalString(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode migration settings: %w", err)
	}

	record := &model.StorageMigration{
		MigrationID:  "mig_" + uuid.NewString(),
		MediaID:      mediaID,
		UserID:       userID,
		FromType:     from,
		ToType:       to,
		State:        model.MigrationInProgress,
		StartTime:    time.Now(),
		SettingsJSON: settingsJSON,
	}

	if err := s.dbClient.GetDB().WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create migration record: %w", err)
	}

	s.mu.Lock()
	s.active[record.MigrationID] = record
	s.mu.Unlock()

	metrics.ActiveMigrations.Inc()

	return record, nil
}

// finishMigration 终化迁移记录并清理内存跟踪，成功与失败共用.
func (s *HybridService) finishMigration(ctx context.Context, record *model.StorageMigration, state model.MigrationState, errMsg string) {
	now := time.Now()
	record.State = state
	record.EndTime = &now
	record.ErrorMsg = errMsg

	if state == model.MigrationCompleted {
		record.Progress = 100
	}

	if err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.StorageMigration{}).
		Where("migration_id = ?", record.MigrationID).
		Updates(map[string]any{
			"state":         state,
			"progress":      record.Progress,
			"end_time":      now,
			"error_message": errMsg,
		}).Error; err != nil {
		nlog.Logger().Error().Err(err).Str("migration", record.MigrationID).Msg("failed to finalize migration record")
	}

	s.mu.Lock()
	_, tracked := s.active[record.MigrationID]
	delete(s.active, record.MigrationID)
	s.mu.Unlock()

	// 仅对跟踪中的记录递减，直接从 DB 载入终化的记录从未计入仪表
	if tracked {
		metrics.ActiveMigrations.Dec()
	}
}

// updateProgress 持久化进度并转发给调用方回调.
func (s *HybridService) updateProgress(ctx context.Context, record *model.StorageMigration, percent float64, onProgress func(float64)) {
	record.Progress = percent

	if err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.StorageMigration{}).
		Where("migration_id = ?", record.MigrationID).
		Update("progress", percent).Error; err != nil {
		nlog.Logger().Debug().Err(err).Str("migration", record.MigrationID).Msg("failed to persist migration progress")
	}

	if onProgress != nil {
		onProgress(percent)
	}
}

// RecoverActiveMigrations 启动恢复：超过 migration_abandon_after 的非终态记录
// 直接判超时失败，其余载入内存跟踪，resumeMigration 无须回库即可找到.
func (s *HybridService) RecoverActiveMigrations(ctx context.Context) error {
	var rows []model.StorageMigration

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("state IN ?", []model.MigrationState{model.MigrationPending, model.MigrationInProgress, model.MigrationPaused}).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to load active migrations: %w", err)
	}

	cutoff := time.Now().Add(-s.cfg.MigrationAbandonAfter)
	abandoned := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range rows {
		row := rows[i]

		if row.StartTime.Before(cutoff) {
			now := time.Now()
			if err := s.dbClient.GetDB().WithContext(ctx).
				Model(&model.StorageMigration{}).
				Where("migration_id = ?", row.MigrationID).
				Updates(map[string]any{
					"state":         model.MigrationFailed,
					"end_time":      now,
					"error_message": "migration timed out",
				}).Error; err != nil {
				nlog.Logger().Error().Err(err).Str("migration", row.MigrationID).Msg("failed to abandon stale migration")

				continue
			}

			abandoned++

			continue
		}

		s.active[row.MigrationID] = &row
		// finishMigration 对每条跟踪中的记录 Dec，这里对应补上
		metrics.ActiveMigrations.Inc()
	}

	nlog.Logger().Info().
		Int("recovered", len(s.active)).
		Int("abandoned", abandoned).
		Msg("migration recovery finished")

	return nil
}

// ResumeMigration 恢复一次迁移.
// 终态记录直接返回终态结果；非终态按持久化的设置整体重跑——
// 粗粒度恢复，底层拷贝以覆盖目标的方式幂等.
func (s *HybridService) ResumeMigration(ctx context.Context, migrationID string) types.MigrationResult {
	s.mu.Lock()
	record, ok := s.active[migrationID]
	s.mu.Unlock()

	if !ok {
		var row model.StorageMigration

		err := s.dbClient.GetDB().WithContext(ctx).
			Where("migration_id = ?", migrationID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.MigrationResult{Success: false, State: model.MigrationFailed, Error: fmt.Sprintf("migration %s not found", migrationID)}
		}

		if err != nil {
			return types.MigrationResult{Success: false, State: model.MigrationFailed, Error: err.Error()}
		}

		record = &row
	}

	if record.State.IsTerminal() {
		return types.MigrationResult{
			Success:     record.State == model.MigrationCompleted,
			MigrationID: record.MigrationID,
			State:       record.State,
			Error:       record.ErrorMsg,
		}
	}

	var settings migrationSettings
	if record.SettingsJSON != "" {
		if err := sonic.UnmarshalString(record.SettingsJSON, &settings); err != nil {
			return types.MigrationResult{Success: false, State: model.MigrationFailed, Error: fmt.Sprintf("failed to decode migration settings: %v", err)}
		}
	}

	// 旧记录作废，按原目标重新发起
	s.finishMigration(ctx, record, model.MigrationFailed, "superseded by resume")

	switch record.ToType {
	case model.StorageServer:
		return s.MigrateToServer(ctx, record.MediaID, record.UserID, nil)
	case model.StorageLocal:
		return s.MigrateToLocal(ctx, record.MediaID, record.UserID, settings.LocalPath, settings.ComputerID)
	case model.StorageServerChunked:
		return s.MigrateToChunked(ctx, record.MediaID, record.UserID, nil)
	}

	return types.MigrationResult{Success: false, State: model.MigrationFailed, Error: fmt.Sprintf("unknown target tier %q", record.ToType)}
}

// ValidateLocalFile 校验 local 层级媒体的真实文件，无论结果如何都更新检查时间.
func (s *HybridService) ValidateLocalFile(ctx context.Context, mediaID, userID string) (types.LocalFileValidation, error) {
	var row model.MediaFile

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		First(&row).Error
	if err != nil {
		return types.LocalFileValidation{}, fmt.Errorf("failed to read media file row: %w", err)
	}

	validation := types.LocalFileValidation{}

	if info, statErr := os.Stat(row.OriginalPath); statErr == nil {
		validation.Exists = true
		validation.Accessible = true
		validation.SizeMatches = info.Size() == row.FileSize
	} else if !os.IsNotExist(statErr) {
		validation.Exists = true
	}

	validation.IsValid = validation.Exists && validation.Accessible && validation.SizeMatches

	now := time.Now()
	if err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.MediaFile{}).
		Where("media_id = ? AND user_id = ?", mediaID, userID).
		Update("last_local_check", now).Error; err != nil {
		nlog.Logger().Debug().Err(err).Str("media", mediaID).Msg("failed to update last local check")
	}

	return validation, nil
}

// SyncLocalFiles 校验用户全部 local 层级媒体，只统计不自动迁移.
func (s *HybridService) SyncLocalFiles(ctx context.Context, userID string) (types.SyncResult, error) {
	var rows []model.MediaFile

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("user_id = ? AND storage_type = ?", userID, model.StorageLocal).
		Find(&rows).Error
	if err != nil {
		return types.SyncResult{}, fmt.Errorf("failed to list local media: %w", err)
	}

	result := types.SyncResult{}

	for i := range rows {
		validation, err := s.ValidateLocalFile(ctx, rows[i].MediaID, userID)
		if err != nil || !validation.IsValid {
			result.Failed++
			result.FailedMedia = append(result.FailedMedia, rows[i].MediaID)

			continue
		}

		result.Synced++
	}

	return result, nil
}

// CleanupFailedMigrations 删除超过保留期的终态迁移记录，并顺带清理孤儿分块.
func (s *HybridService) CleanupFailedMigrations(ctx context.Context, userID string) (int, error) {
	cutoff := time.Now().Add(-s.cfg.MigrationRetention)

	tx := s.dbClient.GetDB().WithContext(ctx).
		Where("state IN ? AND end_time < ?",
			[]model.MigrationState{model.MigrationCompleted, model.MigrationFailed, model.MigrationRolledBack}, cutoff)
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}

	res := tx.Delete(&model.StorageMigration{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete stale migration records: %w", res.Error)
	}

	if _, err := s.chunks.CleanupOrphanedChunks(ctx, userID); err != nil {
		nlog.Logger().Warn().Err(err).Msg("chunk cleanup during migration cleanup failed")
	}

	return int(res.RowsAffected), nil
}

// GetMigrationStats 按状态统计迁移记录（管理端点）.
func (s *HybridService) GetMigrationStats(ctx context.Context, userID string) (map[string]int64, error) {
	type stateCount struct {
		State string
		Count int64
	}

	var counts []stateCount

	tx := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.StorageMigration{}).
		Select("state, COUNT(*) AS count").
		Group("state")
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}

	if err := tx.Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate migrations: %w", err)
	}

	stats := make(map[string]int64, len(counts))
	for _, c := range counts {
		stats[c.State] = c.Count
	}

	return stats, nil
}
