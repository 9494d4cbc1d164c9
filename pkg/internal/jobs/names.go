package jobs

// 任务名称常量，便于统一管理与引用.
const (
	JobQuotaCacheSweep      = "quota.cache_sweep"
	JobChunkOrphanCleanup   = "chunks.orphan_cleanup"
	JobMigrationCleanup     = "migrations.terminal_cleanup"
	JobOrphanedIndexCleanup = "orphaned.index_cleanup"
)

// Cron 表达式常量（可选，但推荐一并集中管理）.
const (
	CronQuotaCacheSweep      = "*/10 * * * *"
	CronChunkOrphanCleanup   = "20 3 * * *"
	CronMigrationCleanup     = "40 4 * * *"
	CronOrphanedIndexCleanup = "50 4 * * *"
)
