// Package jobs 负责注册与实现业务定时任务（基于 scheduler），
// 以及存储子系统的内存后台任务队列。
package jobs

import (
	"context"
	"fmt"

	ctxPkg "github.com/yeisme/transvault/pkg/context"
	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/service"
	"github.com/yeisme/transvault/pkg/internal/storage"
	"github.com/yeisme/transvault/pkg/log"
	"github.com/yeisme/transvault/pkg/scheduler"
)

// RegisterCronJobs 配置业务定时任务：
//   - 每 10 分钟扫描配额缓存，预刷新临期条目
//   - 每天 03:20 清理孤儿分块目录
//   - 每天 04:40 删除超过保留期的终态迁移记录
//   - 每天 04:50 修剪各用户孤儿转写索引中的失效条目
func RegisterCronJobs(sched *scheduler.Scheduler, mgr *storage.Manager, reg *service.Registry) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if mgr == nil {
		return fmt.Errorf("storage manager is nil")
	}

	if reg == nil {
		return fmt.Errorf("service registry is nil")
	}

	// 将 storage manager 注入到 context，便于 service 使用
	baseCtx := ctxPkg.WithStorageManager(context.Background(), mgr)

	// 每 10 分钟预刷新临期的配额缓存条目
	_ = sched.AddCron(JobQuotaCacheSweep, CronQuotaCacheSweep, func(ctx context.Context) {
		runQuotaCacheSweep(ctx, reg)
	}, baseCtx)

	// 每天 03:20 清理孤儿分块目录
	_ = sched.AddCron(JobChunkOrphanCleanup, CronChunkOrphanCleanup, func(ctx context.Context) {
		runChunkOrphanCleanup(ctx, reg)
	}, baseCtx)

	// 每天 04:40 删除超过保留期的终态迁移记录
	_ = sched.AddCron(JobMigrationCleanup, CronMigrationCleanup, func(ctx context.Context) {
		runMigrationCleanup(ctx, reg)
	}, baseCtx)

	// 每天 04:50 修剪孤儿转写索引
	_ = sched.AddCron(JobOrphanedIndexCleanup, CronOrphanedIndexCleanup, func(ctx context.Context) {
		runOrphanedIndexCleanup(ctx, mgr, reg)
	}, baseCtx)

	return nil
}

// runQuotaCacheSweep 触发配额缓存的预刷新扫描。
func runQuotaCacheSweep(ctx context.Context, reg *service.Registry) {
	l := log.Logger().With().Str("job", JobQuotaCacheSweep).Logger()

	n := reg.Quota.SweepStaleEntries(ctx)
	if n > 0 {
		l.Info().Int("refreshed", n).Msg("quota cache sweep done")
	}
}

// runChunkOrphanCleanup 回收所有用户目录下超龄的未注册分块目录。
func runChunkOrphanCleanup(ctx context.Context, reg *service.Registry) {
	l := log.Logger().With().Str("job", JobChunkOrphanCleanup).Logger()

	result, err := reg.Chunks.CleanupOrphanedChunks(ctx, "")
	if err != nil {
		l.Error().Err(err).Msg("chunk cleanup failed")
		return
	}

	if result.DirsRemoved > 0 || result.RecordsRemoved > 0 {
		l.Info().Int("dirs", result.DirsRemoved).Int("records", result.RecordsRemoved).
			Int64("bytes_freed", result.BytesFreed).Msg("orphaned chunks cleaned")
	}
}

// runMigrationCleanup 删除超过保留期的终态迁移记录。
func runMigrationCleanup(ctx context.Context, reg *service.Registry) {
	l := log.Logger().With().Str("job", JobMigrationCleanup).Logger()

	n, err := reg.Hybrid.CleanupFailedMigrations(ctx, "")
	if err != nil {
		l.Error().Err(err).Msg("migration cleanup failed")
		return
	}

	if n > 0 {
		l.Info().Int("removed", n).Msg("stale migration records removed")
	}
}

// runOrphanedIndexCleanup 遍历所有用户，修剪孤儿索引中归档路径已失效的条目。
func runOrphanedIndexCleanup(ctx context.Context, mgr *storage.Manager, reg *service.Registry) {
	l := log.Logger().With().Str("job", JobOrphanedIndexCleanup).Logger()

	users, err := listAllUsers(ctx, mgr)
	if err != nil {
		l.Error().Err(err).Msg("list users failed")
		return
	}

	for _, u := range users {
		n, e := reg.Orphaned.CleanupIndex(u)
		if e != nil {
			l.Error().Err(e).Str("user", u).Msg("index cleanup failed")
			continue
		}

		if n > 0 {
			l.Info().Str("user", u).Int("pruned", n).Msg("orphaned index cleaned")
		}
	}
}

// listAllUsers 查询 DB 中存在配额记录的所有用户。
func listAllUsers(ctx context.Context, mgr *storage.Manager) ([]string, error) {
	if mgr == nil || mgr.GetDBClient() == nil || mgr.GetDBClient().GetDB() == nil {
		return nil, fmt.Errorf("db not initialized")
	}

	dbx := mgr.GetDBClient().GetDB().WithContext(ctx)

	var users []string
	if err := dbx.Model(&model.UserStorageQuota{}).Distinct().Pluck("user_id", &users).Error; err != nil {
		return nil, err
	}

	return users, nil
}
