package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/types"
)

// 优化建议的优先级与估算常数，全部是启发式而非测量值.
const (
	priorityInaccessibleLocal = 10
	priorityLargeToChunked    = 7
	priorityLocalToServer     = 5

	// 分块存储的大小收益估算比例
	chunkedSavingsRatio = 0.20
	// 每条建议的迁移时间估算（分钟）
	minutesPerMigration = 5
)

// OptimizeUserStorage 启发式存储优化建议：
// 校验失败的本地文件最优先迁到服务器，大文件建议分块，本地文件建议入服务器.
// 每个媒体只保留最高优先级的一条建议，结果按优先级降序.
func (s *HybridService) OptimizeUserStorage(ctx context.Context, userID string) (types.OptimizationPlan, error) {
	var rows []model.MediaFile

	err := s.dbClient.GetDB().WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error
	if err != nil {
		return types.OptimizationPlan{}, fmt.Errorf("failed to list media files: %w", err)
	}

	best := make(map[string]types.MigrationRecommendation)

	consider := func(rec types.MigrationRecommendation) {
		if current, ok := best[rec.MediaID]; !ok || rec.Priority > current.Priority {
			best[rec.MediaID] = rec
		}
	}

	for i := range rows {
		row := rows[i]

		if row.StorageType == model.StorageLocal {
			validation, err := s.ValidateLocalFile(ctx, row.MediaID, userID)
			if err == nil && !validation.IsValid {
				consider(types.MigrationRecommendation{
					MediaID:  row.MediaID,
					FileName: row.FileName,
					FileSize: row.FileSize,
					FromType: row.StorageType,
					ToType:   model.StorageServer,
					Priority: priorityInaccessibleLocal,
					Reason:   "local file inaccessible or size mismatch",
				})
			}

			consider(types.MigrationRecommendation{
				MediaID:  row.MediaID,
				FileName: row.FileName,
				FileSize: row.FileSize,
				FromType: row.StorageType,
				ToType:   model.StorageServer,
				Priority: priorityLocalToServer,
				Reason:   "server storage is more reliable than local",
			})
		}

		if row.FileSize > s.cfg.LargeFileThreshold && row.StorageType != model.StorageServerChunked {
			consider(types.MigrationRecommendation{
				MediaID:  row.MediaID,
				FileName: row.FileName,
				FileSize: row.FileSize,
				FromType: row.StorageType,
				ToType:   model.StorageServerChunked,
				Priority: priorityLargeToChunked,
				Reason:   "large file benefits from chunked storage",
			})
		}
	}

	plan := types.OptimizationPlan{Recommendations: make([]types.MigrationRecommendation, 0, len(best))}

	for _, rec := range best {
		plan.Recommendations = append(plan.Recommendations, rec)

		if rec.ToType == model.StorageServerChunked {
			plan.EstimatedSavingsBytes += int64(float64(rec.FileSize) * chunkedSavingsRatio)
		}
	}

	sort.Slice(plan.Recommendations, func(i, j int) bool {
		if plan.Recommendations[i].Priority != plan.Recommendations[j].Priority {
			return plan.Recommendations[i].Priority > plan.Recommendations[j].Priority
		}

		return plan.Recommendations[i].MediaID < plan.Recommendations[j].MediaID
	})

	plan.EstimatedTimeMinutes = len(plan.Recommendations) * minutesPerMigration

	return plan, nil
}

// CalculateMigrationCost 迁移成本的启发式估算，仅用于展示，不做准入控制.
func (s *HybridService) CalculateMigrationCost(ctx context.Context, mediaID, userID string, target model.StorageType) (types.MigrationCost, error) {
	info, err := s.GetMediaStorageInfo(ctx, mediaID, userID)
	if err != nil {
		return types.MigrationCost{}, err
	}

	if info == nil {
		return types.MigrationCost{}, fmt.Errorf("media %s not found", mediaID)
	}

	sizeMB := info.FileSize / oneMB

	cost := types.MigrationCost{
		BandwidthMB: sizeMB,
		TimeMinutes: int(sizeMB/100) + 1,
	}

	switch {
	case sizeMB < 50:
		cost.ServerResources = "low"
	case sizeMB < 500:
		cost.ServerResources = "medium"
	default:
		cost.ServerResources = "high"
	}

	// 推荐分与来源/目标配对相关
	switch {
	case info.StorageType == target:
		cost.Score = 1 // 已在目标层级，没有意义
	case target == model.StorageServerChunked && info.FileSize > s.cfg.LargeFileThreshold:
		cost.Score = 9
	case target == model.StorageServer && info.StorageType == model.StorageLocal:
		cost.Score = 8
	case target == model.StorageLocal:
		cost.Score = 4 // 本地层级可靠性最差
	default:
		cost.Score = 6
	}

	return cost, nil
}
