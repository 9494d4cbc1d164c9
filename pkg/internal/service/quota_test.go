package service

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/transvault/pkg/cache"
	"github.com/yeisme/transvault/pkg/internal/model"
)

func TestBytesToMB(t *testing.T) {
	cases := []struct {
		bytes int64
		want  int64
	}{
		{0, 0},
		{oneMB, 1},
		{oneMB / 2, 1},   // 0.5 向上取整
		{oneMB/2 - 1, 0}, // 刚好低于半 MB
		{150 * oneMB, 150},
	}

	for _, c := range cases {
		if got := bytesToMB(c.bytes); got != c.want {
			t.Errorf("bytesToMB(%d) = %d, want %d", c.bytes, got, c.want)
		}
	}
}

func TestUsedPercent(t *testing.T) {
	if got := usedPercent(1, 3); got != 33.3 {
		t.Errorf("usedPercent(1,3) = %v, want 33.3", got)
	}

	if got := usedPercent(50, 0); got != 0 {
		t.Errorf("zero limit should yield 0, got %v", got)
	}

	if got := usedPercent(42*oneMB, 500*oneMB); got != 8.4 {
		t.Errorf("usedPercent = %v, want 8.4", got)
	}
}

func TestGetUserStorageLazyCreate(t *testing.T) {
	svc := newTestQuota(t)

	var walks atomic.Int64

	svc.walkFn = func(string) int64 {
		walks.Add(1)

		return 0
	}

	ctx := context.Background()

	info, err := svc.GetUserStorage(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaLimitMB != 500 || info.QuotaUsedMB != 0 {
		t.Errorf("default snapshot = %d/%d MB, want 0/500", info.QuotaUsedMB, info.QuotaLimitMB)
	}

	var row model.UserStorageQuota
	if err := svc.dbClient.GetDB().Where("user_id = ?", "alice@example.com").First(&row).Error; err != nil {
		t.Fatalf("quota row not created: %v", err)
	}

	// 懒创建后真实用量交给后台重算
	waitFor(t, time.Second, func() bool { return walks.Load() >= 1 })
}

func TestGetUserStorageEmptyUser(t *testing.T) {
	svc := newTestQuota(t)

	if _, err := svc.GetUserStorage(context.Background(), ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestGetUserStorageCachePrecedence(t *testing.T) {
	svc := newTestQuota(t)
	ctx := context.Background()

	row := model.UserStorageQuota{UserID: "u1", QuotaLimit: 500 * oneMB, QuotaUsed: 100 * oneMB}
	if err := svc.dbClient.GetDB().Create(&row).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	info, err := svc.GetUserStorage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 100 {
		t.Fatalf("used = %d MB, want 100", info.QuotaUsedMB)
	}

	// 库里变了，TTL 内仍然读缓存
	if err := svc.dbClient.GetDB().Model(&model.UserStorageQuota{}).
		Where("user_id = ?", "u1").
		UpdateColumn("quota_used", 200*oneMB).Error; err != nil {
		t.Fatalf("update row: %v", err)
	}

	info, err = svc.GetUserStorage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 100 {
		t.Errorf("cached used = %d MB, want 100", info.QuotaUsedMB)
	}

	// 缓存失效后读到新值
	if err := svc.cache.Delete(ctx, quotaCacheKey("u1")); err != nil {
		t.Fatalf("evict cache: %v", err)
	}

	info, err = svc.GetUserStorage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 200 {
		t.Errorf("used after evict = %d MB, want 200", info.QuotaUsedMB)
	}
}

func TestGetUserStorageStaleRowTriggersRefresh(t *testing.T) {
	svc := newTestQuota(t)

	var walks atomic.Int64

	svc.walkFn = func(string) int64 {
		walks.Add(1)

		return 0
	}

	row := model.UserStorageQuota{UserID: "u2", QuotaLimit: 500 * oneMB}
	if err := svc.dbClient.GetDB().Create(&row).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	old := time.Now().Add(-svc.cfg.DBStaleAfter - time.Hour)
	if err := svc.dbClient.GetDB().Model(&model.UserStorageQuota{}).
		Where("user_id = ?", "u2").
		UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("backdate row: %v", err)
	}

	if _, err := svc.GetUserStorage(context.Background(), "u2"); err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	waitFor(t, time.Second, func() bool { return walks.Load() >= 1 })
}

func TestForceRefreshUserStorage(t *testing.T) {
	svc := newTestQuota(t)
	svc.walkFn = func(string) int64 { return 42 * oneMB }

	ctx := context.Background()

	info, err := svc.ForceRefreshUserStorage(ctx, "u3")
	if err != nil {
		t.Fatalf("ForceRefreshUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 42 {
		t.Errorf("used = %d MB, want 42", info.QuotaUsedMB)
	}

	if info.UsedPercent != 8.4 {
		t.Errorf("percent = %v, want 8.4", info.UsedPercent)
	}

	var row model.UserStorageQuota
	if err := svc.dbClient.GetDB().Where("user_id = ?", "u3").First(&row).Error; err != nil {
		t.Fatalf("read row: %v", err)
	}

	if row.QuotaUsed != 42*oneMB {
		t.Errorf("persisted used = %d, want %d", row.QuotaUsed, 42*oneMB)
	}

	// 重算结果进了缓存
	info, err = svc.GetUserStorage(ctx, "u3")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 42 {
		t.Errorf("cached used = %d MB, want 42", info.QuotaUsedMB)
	}
}

func TestCanUserUploadBoundary(t *testing.T) {
	svc := newTestQuota(t)
	ctx := context.Background()

	row := model.UserStorageQuota{UserID: "u4", QuotaLimit: 500 * oneMB, QuotaUsed: 100 * oneMB}
	if err := svc.dbClient.GetDB().Create(&row).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	// 刚好用满配额：允许
	check, err := svc.CanUserUpload(ctx, "u4", 400*oneMB)
	if err != nil {
		t.Fatalf("CanUserUpload: %v", err)
	}

	if !check.CanUpload {
		t.Errorf("exact-fit upload rejected: %+v", check)
	}

	if check.AvailableMB != 400 {
		t.Errorf("available = %d MB, want 400", check.AvailableMB)
	}

	// 超出一个字节：拒绝并带数字明细
	check, err = svc.CanUserUpload(ctx, "u4", 400*oneMB+1)
	if err != nil {
		t.Fatalf("CanUserUpload: %v", err)
	}

	if check.CanUpload {
		t.Fatal("over-quota upload allowed")
	}

	want := "storage quota exceeded: 100 MB used of 500 MB, 400 MB requested"
	if check.Message != want {
		t.Errorf("message = %q, want %q", check.Message, want)
	}
}

func TestIncrementUsedStorageClamp(t *testing.T) {
	svc := newTestQuota(t)
	ctx := context.Background()

	if err := svc.IncrementUsedStorage(ctx, "u5", 10*oneMB); err != nil {
		t.Fatalf("increment: %v", err)
	}

	info, err := svc.GetUserStorage(ctx, "u5")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsedMB != 10 {
		t.Errorf("used = %d MB, want 10", info.QuotaUsedMB)
	}

	// 负增量越过 0 被钳回
	if err := svc.IncrementUsedStorage(ctx, "u5", -20*oneMB); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	info, err = svc.GetUserStorage(ctx, "u5")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaUsed != 0 {
		t.Errorf("used = %d, want 0 after clamp", info.QuotaUsed)
	}
}

func TestUpdateUserQuota(t *testing.T) {
	svc := newTestQuota(t)
	ctx := context.Background()

	if err := svc.UpdateUserQuota(ctx, "u6", 1000); err != nil {
		t.Fatalf("UpdateUserQuota: %v", err)
	}

	info, err := svc.GetUserStorage(ctx, "u6")
	if err != nil {
		t.Fatalf("GetUserStorage: %v", err)
	}

	if info.QuotaLimitMB != 1000 {
		t.Errorf("limit = %d MB, want 1000", info.QuotaLimitMB)
	}

	if err := svc.UpdateUserQuota(ctx, "u6", 0); err == nil {
		t.Error("expected error for non-positive quota")
	}

	if err := svc.UpdateUserQuota(ctx, "", 10); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestSweepStaleEntries(t *testing.T) {
	svc := newTestQuota(t)

	var walks atomic.Int64

	svc.walkFn = func(string) int64 {
		walks.Add(1)

		return 0
	}

	ctx := context.Background()
	now := time.Now()

	put := func(userID string, cachedAt time.Time) {
		entry := quotaCacheEntry{CachedAt: cachedAt}
		entry.Info.UserID = userID

		if err := cache.Set(ctx, svc.cache, quotaCacheKey(userID), entry, 0); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	put("fresh", now)                              // TTL 以内，不动
	put("stale", now.Add(-svc.cfg.CacheTTL*3/2))   // 一到两倍 TTL，触发预刷新
	put("expired", now.Add(-svc.cfg.CacheTTL*5/2)) // 超过两倍 TTL，留给 KV 过期

	if triggered := svc.SweepStaleEntries(ctx); triggered != 1 {
		t.Errorf("triggered = %d, want 1", triggered)
	}

	waitFor(t, time.Second, func() bool { return walks.Load() >= 1 })
}

func TestGetTotalStorageStats(t *testing.T) {
	svc := newTestQuota(t)
	ctx := context.Background()

	rows := []model.UserStorageQuota{
		{UserID: "a", QuotaLimit: 100 * oneMB, QuotaUsed: 50 * oneMB},
		{UserID: "b", QuotaLimit: 100 * oneMB, QuotaUsed: 25 * oneMB},
	}
	if err := svc.dbClient.GetDB().Create(&rows).Error; err != nil {
		t.Fatalf("seed rows: %v", err)
	}

	stats, err := svc.GetTotalStorageStats(ctx)
	if err != nil {
		t.Fatalf("GetTotalStorageStats: %v", err)
	}

	if stats.TotalUsers != 2 {
		t.Errorf("users = %d, want 2", stats.TotalUsers)
	}

	if stats.AvgUsedPercent != 37.5 {
		t.Errorf("avg percent = %v, want 37.5", stats.AvgUsedPercent)
	}

	all, err := svc.GetAllUsersStorage(ctx)
	if err != nil {
		t.Fatalf("GetAllUsersStorage: %v", err)
	}

	if len(all) != 2 || all[0].UserID != "a" || all[1].UserID != "b" {
		t.Errorf("unexpected listing order: %+v", all)
	}
}

func TestClearUserStorage(t *testing.T) {
	svc := newTestQuota(t)
	svc.walkFn = CalculateDirectorySize
	ctx := context.Background()

	root := svc.layout.UserRoot("u9")
	writeTestFile(t, filepath.Join(root, "projects", "p1", "a.bin"), 300)

	seed := []any{
		&model.UserStorageQuota{UserID: "u9", QuotaLimit: 500 * oneMB, QuotaUsed: 300},
		&model.ChunkMetadata{MediaID: "m1", UserID: "u9"},
		&model.MediaFile{MediaID: "m1", UserID: "u9", StorageType: model.StorageServer},
		&model.ChunkMetadata{MediaID: "m2", UserID: "other"},
	}
	for _, row := range seed {
		if err := svc.dbClient.GetDB().Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	result, err := svc.ClearUserStorage(ctx, "u9")
	if err != nil {
		t.Fatalf("ClearUserStorage: %v", err)
	}

	if result.BytesFreed != 300 {
		t.Errorf("bytes freed = %d, want 300", result.BytesFreed)
	}

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("user root should be removed")
	}

	var row model.UserStorageQuota
	if err := svc.dbClient.GetDB().Where("user_id = ?", "u9").First(&row).Error; err != nil {
		t.Fatalf("read row: %v", err)
	}

	if row.QuotaUsed != 0 {
		t.Errorf("quota used = %d, want 0", row.QuotaUsed)
	}

	var chunkCount int64
	svc.dbClient.GetDB().Model(&model.ChunkMetadata{}).Where("user_id = ?", "u9").Count(&chunkCount)

	if chunkCount != 0 {
		t.Error("chunk metadata for cleared user should be gone")
	}

	svc.dbClient.GetDB().Model(&model.ChunkMetadata{}).Where("user_id = ?", "other").Count(&chunkCount)

	if chunkCount != 1 {
		t.Error("other user's chunk metadata must survive")
	}
}
