package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yeisme/transvault/pkg/audio"
	"github.com/yeisme/transvault/pkg/cache"
	"github.com/yeisme/transvault/pkg/configs"
	"github.com/yeisme/transvault/pkg/internal/model"
	dbc "github.com/yeisme/transvault/pkg/internal/storage/db"
	"github.com/yeisme/transvault/pkg/internal/storage/kv"
)

// newTestDB 打开独立的内存 SQLite 并建好全部表.
func newTestDB(t *testing.T) *dbc.Client {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}

	// 内存库随连接存亡，池里只能有一条连接
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(
		&model.UserStorageQuota{},
		&model.ChunkMetadata{},
		&model.MediaFile{},
		&model.StorageMigration{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return &dbc.Client{DB: gdb}
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
	if err != nil {
		t.Fatalf("create memory kv: %v", err)
	}

	return cache.NewCache(store)
}

// testStorageConfig 测试用配置：小分块便于跨块边界，其余跟默认值对齐.
func testStorageConfig(basePath string) *configs.StorageConfig {
	return &configs.StorageConfig{
		BasePath:          basePath,
		DefaultQuotaBytes: 500 * oneMB,

		CacheTTL:           5 * time.Minute,
		CacheSweepInterval: 10 * time.Minute,
		DBStaleAfter:       30 * time.Minute,

		ChunkSize:            1024,
		ChunkOrphanAge:       48 * time.Hour,
		ChunkCleanupInterval: 24 * time.Hour,

		LargeFileThreshold: 100 * oneMB,

		MigrationAbandonAfter: 24 * time.Hour,
		MigrationRetention:    168 * time.Hour,

		JobsTick:               30 * time.Second,
		JobsPerTick:            2,
		JobsCompletedRetention: 5 * time.Minute,
		JobsFailedRetention:    time.Hour,
	}
}

func newTestQuota(t *testing.T) *QuotaService {
	t.Helper()

	cfg := testStorageConfig(t.TempDir())

	return &QuotaService{
		dbClient: newTestDB(t),
		cache:    newTestCache(t),
		layout:   Layout{BasePath: cfg.BasePath},
		cfg:      cfg,
		walkFn:   func(string) int64 { return 0 },
	}
}

func newTestChunks(t *testing.T) (*ChunkService, *QuotaService) {
	t.Helper()

	quota := newTestQuota(t)
	chunks := &ChunkService{
		dbClient: quota.dbClient,
		layout:   quota.layout,
		cfg:      quota.cfg,
		quota:    quota,
	}

	return chunks, quota
}

func newTestHybrid(t *testing.T) (*HybridService, *ChunkService, *QuotaService) {
	t.Helper()

	chunks, quota := newTestChunks(t)
	hybrid := &HybridService{
		dbClient: quota.dbClient,
		layout:   quota.layout,
		cfg:      quota.cfg,
		chunks:   chunks,
		quota:    quota,
		active:   make(map[string]*model.StorageMigration),
	}

	return hybrid, chunks, quota
}

func newTestOrphaned(t *testing.T) *OrphanedService {
	t.Helper()

	return &OrphanedService{
		layout: Layout{BasePath: t.TempDir()},
		prober: audio.NopProber{},
	}
}

// waitFor 轮询直到条件满足，避免测试里写死 sleep.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}
