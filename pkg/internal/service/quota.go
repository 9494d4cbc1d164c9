package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/transvault/pkg/cache"
	"github.com/yeisme/transvault/pkg/configs"
	ctxPkg "github.com/yeisme/transvault/pkg/context"
	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/storage/db"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

const oneMB = 1 << 20

// quotaCachePrefix 配额快照在 KV 中的键前缀.
const quotaCachePrefix = "quota:"

// quotaCacheEntry 缓存信封，CachedAt 用于 TTL 判定与预刷新扫描.
type quotaCacheEntry struct {
	Info     types.UserStorageInfo `json:"info"`
	CachedAt time.Time             `json:"cachedAt"`
}

// QuotaService 用户配额服务：TTL 缓存 + 后台重算 + 强制刷新.
// 进程内只构造一次（由 app 启动时创建），后台重算经 singleflight 合并，
// 同一用户同时只有一次目录遍历在跑.
type QuotaService struct {
	dbClient *db.Client
	cache    *cache.Cache
	layout   Layout
	cfg      *configs.StorageConfig

	sf singleflight.Group

	// walkFn 可在测试中替换为计数桩
	walkFn func(string) int64
}

// NewQuotaService 创建配额服务，从 context 获取存储客户端.
func NewQuotaService(c context.Context) *QuotaService {
	kvc := ctxPkg.GetKVClient(c)

	return &QuotaService{
		dbClient: ctxPkg.GetDBClient(c),
		cache:    cache.NewCache(kvc),
		layout:   NewLayout(),
		cfg:      &configs.GetConfig().Storage,
		walkFn:   CalculateDirectorySize,
	}
}

func quotaCacheKey(userID string) string {
	return quotaCachePrefix + userID
}

// bytesToMB 字节转 MB，四舍五入到整数.
func bytesToMB(b int64) int64 {
	return int64(math.Round(float64(b) / float64(oneMB)))
}

// usedPercent 使用率，保留一位小数.
func usedPercent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}

	return math.Round(float64(used)/float64(limit)*1000) / 10
}

// snapshot 从配额行构建对外快照.
func snapshot(q *model.UserStorageQuota) types.UserStorageInfo {
	return types.UserStorageInfo{
		UserID:       q.UserID,
		QuotaLimit:   q.QuotaLimit,
		QuotaUsed:    q.QuotaUsed,
		QuotaLimitMB: bytesToMB(q.QuotaLimit),
		QuotaUsedMB:  bytesToMB(q.QuotaUsed),
		UsedPercent:  usedPercent(q.QuotaUsed, q.QuotaLimit),
		UpdatedAt:    q.UpdatedAt,
	}
}

// GetUserStorage 读取用户配额快照.
// 缓存命中且未过 TTL 直接返回；否则读库（无行则懒创建默认行），
// 库行超过 db_stale_after 未更新时触发一次非阻塞后台重算.
func (s *QuotaService) GetUserStorage(ctx context.Context, userID string) (types.UserStorageInfo, error) {
	if userID == "" {
		return types.UserStorageInfo{}, fmt.Errorf("user id is required")
	}

	if entry, err := cache.Get[quotaCacheEntry](ctx, s.cache, quotaCacheKey(userID)); err == nil {
		if time.Since(entry.CachedAt) < s.cfg.CacheTTL {
			return entry.Info, nil
		}
	}

	var row model.UserStorageQuota

	err := s.dbClient.GetDB().WithContext(ctx).Where("user_id = ?", userID).First(&row).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 懒创建默认行，乐观返回默认值，真实用量交给后台重算
		row = model.UserStorageQuota{
			UserID:     userID,
			QuotaLimit: s.cfg.DefaultQuotaBytes,
			QuotaUsed:  0,
		}
		if createErr := s.dbClient.GetDB().WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row).Error; createErr != nil {
			return types.UserStorageInfo{}, fmt.Errorf("failed to create quota row: %w", createErr)
		}

		info := snapshot(&row)
		s.putCache(ctx, userID, info)
		s.RefreshUserStorageBackground(userID)

		return info, nil
	case err != nil:
		return types.UserStorageInfo{}, fmt.Errorf("failed to read quota row: %w", err)
	}

	info := snapshot(&row)
	s.putCache(ctx, userID, info)

	if time.Since(row.UpdatedAt) > s.cfg.DBStaleAfter {
		s.RefreshUserStorageBackground(userID)
	}

	return info, nil
}

// ForceRefreshUserStorage 清掉缓存后同步全量重算并落库.
// 返回时即为磁盘真实值，代价是整棵用户目录的递归 stat，仅在必须时使用.
func (s *QuotaService) ForceRefreshUserStorage(ctx context.Context, userID string) (types.UserStorageInfo, error) {
	if userID == "" {
		return types.UserStorageInfo{}, fmt.Errorf("user id is required")
	}

	if err := s.cache.Delete(ctx, quotaCacheKey(userID)); err != nil {
		nlog.Logger().Debug().Err(err).Str("user", userID).Msg("quota cache evict failed")
	}

	result, err, _ := s.sf.Do(userID, func() (any, error) {
		return s.recalculate(ctx, userID)
	})
	if err != nil {
		return types.UserStorageInfo{}, err
	}

	info, ok := result.(types.UserStorageInfo)
	if !ok {
		return types.UserStorageInfo{}, fmt.Errorf("unexpected recalculation result type")
	}

	return info, nil
}

// RefreshUserStorageBackground 非阻塞触发一次后台重算，
// singleflight 保证同一用户的并发触发只执行一次遍历.
func (s *QuotaService) RefreshUserStorageBackground(userID string) {
	go func() {
		if _, err, _ := s.sf.Do(userID, func() (any, error) {
			return s.recalculate(context.Background(), userID)
		}); err != nil {
			nlog.Logger().Warn().Err(err).Str("user", userID).Msg("background storage recalculation failed")
		}
	}()
}

// recalculate 全量目录遍历并把结果写回 DB 与缓存.
func (s *QuotaService) recalculate(ctx context.Context, userID string) (types.UserStorageInfo, error) {
	used := s.walkFn(s.layout.UserRoot(userID))
	if used < 0 {
		used = 0
	}

	row := model.UserStorageQuota{
		UserID:     userID,
		QuotaLimit: s.cfg.DefaultQuotaBytes,
		QuotaUsed:  used,
	}

	err := s.dbClient.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quota_used": used, "updated_at": time.Now()}),
		}).
		Create(&row).Error
	if err != nil {
		return types.UserStorageInfo{}, fmt.Errorf("failed to persist recalculated usage: %w", err)
	}

	// 回读以拿到真实 quota_limit（可能被管理员调整过）
	if err := s.dbClient.GetDB().WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return types.UserStorageInfo{}, fmt.Errorf("failed to reload quota row: %w", err)
	}

	info := snapshot(&row)
	s.putCache(ctx, userID, info)

	nlog.Logger().Debug().
		Str("user", userID).
		Int64("used", used).
		Msg("storage usage recalculated")

	return info, nil
}

// putCache 写入缓存信封，KV TTL 设为两倍缓存 TTL：
// 一倍以内视为新鲜，一到两倍之间等待预刷新扫描，之后由 KV 过期回收.
func (s *QuotaService) putCache(ctx context.Context, userID string, info types.UserStorageInfo) {
	entry := quotaCacheEntry{Info: info, CachedAt: time.Now()}
	if err := cache.Set(ctx, s.cache, quotaCacheKey(userID), entry, 2*s.cfg.CacheTTL); err != nil {
		nlog.Logger().Debug().Err(err).Str("user", userID).Msg("quota cache write failed")
	}
}

// SweepStaleEntries 周期性扫描所有缓存条目，
// 对年龄在一到两倍 TTL 之间的条目触发后台重算，摊平过期风暴.
func (s *QuotaService) SweepStaleEntries(ctx context.Context) int {
	keys, err := s.cache.KeysByPrefix(ctx, quotaCachePrefix)
	if err != nil {
		nlog.Logger().Warn().Err(err).Msg("quota cache sweep: list keys failed")

		return 0
	}

	triggered := 0

	for _, key := range keys {
		entry, err := cache.Get[quotaCacheEntry](ctx, s.cache, key)
		if err != nil {
			continue
		}

		age := time.Since(entry.CachedAt)
		if age >= s.cfg.CacheTTL && age < 2*s.cfg.CacheTTL {
			s.RefreshUserStorageBackground(entry.Info.UserID)

			triggered++
		}
	}

	if triggered > 0 {
		nlog.Logger().Info().Int("triggered", triggered).Msg("quota cache sweep triggered background refreshes")
	}

	return triggered
}

// CanUserUpload 上传前的配额检查，拒绝时带数字明细，不抛错.
func (s *QuotaService) CanUserUpload(ctx context.Context, userID string, bytes int64) (types.UploadCheckResult, error) {
	info, err := s.GetUserStorage(ctx, userID)
	if err != nil {
		return types.UploadCheckResult{}, err
	}

	available := info.QuotaLimit - info.QuotaUsed
	if available < 0 {
		available = 0
	}

	result := types.UploadCheckResult{
		CanUpload:     info.QuotaUsed+bytes <= info.QuotaLimit,
		CurrentUsedMB: info.QuotaUsedMB,
		LimitMB:       info.QuotaLimitMB,
		AvailableMB:   bytesToMB(available),
		RequestedMB:   bytesToMB(bytes),
	}

	if !result.CanUpload {
		result.Message = fmt.Sprintf("storage quota exceeded: %d MB used of %d MB, %d MB requested",
			result.CurrentUsedMB, result.LimitMB, result.RequestedMB)
	}

	return result, nil
}

// IncrementUsedStorage 按增量更新已用空间（上传为正、删除为负），下限钳制为 0.
func (s *QuotaService) IncrementUsedStorage(ctx context.Context, userID string, delta int64) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	dbx := s.dbClient.GetDB().WithContext(ctx)

	// 确保行存在
	row := model.UserStorageQuota{UserID: userID, QuotaLimit: s.cfg.DefaultQuotaBytes}
	if err := dbx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to ensure quota row: %w", err)
	}

	if err := dbx.Model(&model.UserStorageQuota{}).
		Where("user_id = ?", userID).
		Update("quota_used", gorm.Expr("quota_used + ?", delta)).Error; err != nil {
		return fmt.Errorf("failed to increment quota: %w", err)
	}

	// 负增量可能越过 0，钳回
	if delta < 0 {
		if err := dbx.Model(&model.UserStorageQuota{}).
			Where("user_id = ? AND quota_used < 0", userID).
			Update("quota_used", 0).Error; err != nil {
			return fmt.Errorf("failed to clamp quota: %w", err)
		}
	}

	// 缓存失效，下次读取走库
	_ = s.cache.Delete(ctx, quotaCacheKey(userID))

	return nil
}

// UpdateUserQuota 只更新配额上限，不动用量.
func (s *QuotaService) UpdateUserQuota(ctx context.Context, userID string, newLimitMB int64) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	if newLimitMB <= 0 {
		return fmt.Errorf("quota limit must be positive")
	}

	row := model.UserStorageQuota{
		UserID:     userID,
		QuotaLimit: newLimitMB * oneMB,
	}

	err := s.dbClient.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quota_limit": newLimitMB * oneMB, "updated_at": time.Now()}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}

	_ = s.cache.Delete(ctx, quotaCacheKey(userID))

	return nil
}

// GetAllUsersStorage 列出全体用户配额（管理路径，直接走库）.
func (s *QuotaService) GetAllUsersStorage(ctx context.Context) ([]types.UserStorageInfo, error) {
	var rows []model.UserStorageQuota
	if err := s.dbClient.GetDB().WithContext(ctx).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list quota rows: %w", err)
	}

	infos := make([]types.UserStorageInfo, 0, len(rows))
	for i := range rows {
		infos = append(infos, snapshot(&rows[i]))
	}

	return infos, nil
}

// GetTotalStorageStats 全体用户的聚合统计.
func (s *QuotaService) GetTotalStorageStats(ctx context.Context) (types.TotalStorageStats, error) {
	var agg struct {
		Users int64
		Limit int64
		Used  int64
	}

	err := s.dbClient.GetDB().WithContext(ctx).
		Model(&model.UserStorageQuota{}).
		Select("COUNT(*) AS users, COALESCE(SUM(quota_limit),0) AS \"limit\", COALESCE(SUM(quota_used),0) AS used").
		Scan(&agg).Error
	if err != nil {
		return types.TotalStorageStats{}, fmt.Errorf("failed to aggregate quota rows: %w", err)
	}

	return types.TotalStorageStats{
		TotalUsers:      int(agg.Users),
		TotalQuotaLimit: agg.Limit,
		TotalQuotaUsed:  agg.Used,
		AvgUsedPercent:  usedPercent(agg.Used, agg.Limit),
	}, nil
}

// ClearUserStorage 管理员操作：删掉用户整棵存储树并把用量清零.
// 删除前先统计大小用于报告；目录删除失败只记录，不阻止配额清零.
func (s *QuotaService) ClearUserStorage(ctx context.Context, userID string) (types.ClearStorageResult, error) {
	if userID == "" {
		return types.ClearStorageResult{}, fmt.Errorf("user id is required")
	}

	result := types.ClearStorageResult{UserID: userID}

	root := s.layout.UserRoot(userID)
	result.BytesFreed = s.walkFn(root)

	if err := os.RemoveAll(root); err != nil {
		nlog.Logger().Error().Err(err).Str("user", userID).Msg("failed to remove user storage tree")
		result.Errors = append(result.Errors, err.Error())
	}

	dbx := s.dbClient.GetDB().WithContext(ctx)

	if err := dbx.Model(&model.UserStorageQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"quota_used": 0, "updated_at": time.Now()}).Error; err != nil {
		return result, fmt.Errorf("failed to reset quota usage: %w", err)
	}

	// 同步清掉派生的 DB 状态
	if err := dbx.Where("user_id = ?", userID).Delete(&model.ChunkMetadata{}).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if err := dbx.Where("user_id = ?", userID).Delete(&model.MediaFile{}).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	_ = s.cache.Delete(ctx, quotaCacheKey(userID))

	return result, nil
}

// ClearAllUsersStorage 对所有有配额行的用户执行 ClearUserStorage.
func (s *QuotaService) ClearAllUsersStorage(ctx context.Context) (types.ClearStorageResult, error) {
	var rows []model.UserStorageQuota
	if err := s.dbClient.GetDB().WithContext(ctx).Find(&rows).Error; err != nil {
		return types.ClearStorageResult{}, fmt.Errorf("failed to list quota rows: %w", err)
	}

	total := types.ClearStorageResult{}

	for i := range rows {
		r, err := s.ClearUserStorage(ctx, rows[i].UserID)
		if err != nil {
			total.Errors = append(total.Errors, err.Error())

			continue
		}

		total.BytesFreed += r.BytesFreed
		total.UsersCleared++
		total.Errors = append(total.Errors, r.Errors...)
	}

	return total, nil
}
