// Package configs 管理应用程序配置，包括存储配额与生命周期子系统的配置信息.
//
// Example:
//
//	config := configs.GetConfig()
//	storageConfig := config.Storage
//	fmt.Println("Chunk size:", storageConfig.ChunkSize)
package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBasePath 用户存储根目录.
	DefaultBasePath = "user_data/users"
	// DefaultQuotaBytes 默认用户配额（500 MiB）.
	DefaultQuotaBytes = 500 * 1024 * 1024
	// DefaultChunkSize 分块大小（5 MiB）.
	DefaultChunkSize = 5 * 1024 * 1024
	// DefaultLargeFileThreshold 推荐分块存储的文件大小阈值（100 MB）.
	DefaultLargeFileThreshold = 100 * 1024 * 1024
)

// StorageConfig 存储配额与生命周期子系统配置.
type StorageConfig struct {
	BasePath string `mapstructure:"base_path" rule:"required"` // 用户存储根目录

	DefaultQuotaBytes int64 `mapstructure:"default_quota_bytes" rule:"min=1"` // 默认配额（字节）

	CacheTTL           time.Duration `mapstructure:"cache_ttl"`            // 配额缓存存活时间
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"` // 缓存预刷新扫描周期
	DBStaleAfter       time.Duration `mapstructure:"db_stale_after"`       // 数据库行过期阈值，超过触发后台重算

	ChunkSize            int64         `mapstructure:"chunk_size"             rule:"min=1024"` // 分块大小（字节）
	ChunkOrphanAge       time.Duration `mapstructure:"chunk_orphan_age"`                       // 孤儿分块目录回收年龄
	ChunkCleanupInterval time.Duration `mapstructure:"chunk_cleanup_interval"`                 // 分块清理周期

	LargeFileThreshold int64 `mapstructure:"large_file_threshold"` // 大文件阈值，超过推荐分块存储

	MigrationAbandonAfter time.Duration `mapstructure:"migration_abandon_after"` // 启动恢复时放弃迁移的年龄
	MigrationRetention    time.Duration `mapstructure:"migration_retention"`     // 终态迁移记录保留时间

	JobsTick               time.Duration `mapstructure:"jobs_tick"`                           // 后台任务队列调度周期
	JobsPerTick            int           `mapstructure:"jobs_per_tick"          rule:"min=1"` // 每次调度处理的任务数上限
	JobsCompletedRetention time.Duration `mapstructure:"jobs_completed_retention"`            // 已完成任务保留时间
	JobsFailedRetention    time.Duration `mapstructure:"jobs_failed_retention"`               // 失败任务保留时间

	FFprobePath string `mapstructure:"ffprobe_path"` // ffprobe 可执行文件路径，为空则禁用时长探测
}

// setDefaults 设置存储子系统配置的默认值.
func (c *StorageConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("storage.base_path", DefaultBasePath)
	v.SetDefault("storage.default_quota_bytes", DefaultQuotaBytes)

	v.SetDefault("storage.cache_ttl", "5m")
	v.SetDefault("storage.cache_sweep_interval", "10m")
	v.SetDefault("storage.db_stale_after", "30m")

	v.SetDefault("storage.chunk_size", DefaultChunkSize)
	v.SetDefault("storage.chunk_orphan_age", "48h")
	v.SetDefault("storage.chunk_cleanup_interval", "24h")

	v.SetDefault("storage.large_file_threshold", DefaultLargeFileThreshold)

	v.SetDefault("storage.migration_abandon_after", "24h")
	v.SetDefault("storage.migration_retention", "168h")

	v.SetDefault("storage.jobs_tick", "30s")
	v.SetDefault("storage.jobs_per_tick", 2)
	v.SetDefault("storage.jobs_completed_retention", "5m")
	v.SetDefault("storage.jobs_failed_retention", "1h")

	v.SetDefault("storage.ffprobe_path", "ffprobe")
}
