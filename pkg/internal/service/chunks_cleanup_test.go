package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yeisme/transvault/pkg/internal/model"
)

func TestCleanupOrphanedChunks(t *testing.T) {
	svc, _ := newTestChunks(t)
	ctx := context.Background()

	chunksDir := svc.layout.ChunksDir("u1")

	// DB 有记录的分块目录：保留
	if err := svc.dbClient.GetDB().Create(&model.ChunkMetadata{
		MediaID: "known", UserID: "u1", IsComplete: true,
	}).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	writeTestFile(t, filepath.Join(chunksDir, "known", "known_chunk_0000.bin"), 100)

	// 无记录且超龄的目录：删除
	oldDir := filepath.Join(chunksDir, "old-orphan")
	writeTestFile(t, filepath.Join(oldDir, "old-orphan_chunk_0000.bin"), 256)

	old := time.Now().Add(-svc.cfg.ChunkOrphanAge - time.Hour)
	if err := os.Chtimes(oldDir, old, old); err != nil {
		t.Fatalf("backdate dir: %v", err)
	}

	// 无记录但未超龄的目录：可能是进行中的上传，保留
	writeTestFile(t, filepath.Join(chunksDir, "new-orphan", "new-orphan_chunk_0000.bin"), 64)

	// 超龄的不完整分块集记录：清除
	stale := model.ChunkMetadata{MediaID: "stale", UserID: "u1", IsComplete: false}
	if err := svc.dbClient.GetDB().Create(&stale).Error; err != nil {
		t.Fatalf("seed stale record: %v", err)
	}

	if err := svc.dbClient.GetDB().Model(&model.ChunkMetadata{}).
		Where("media_id = ?", "stale").
		UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("backdate record: %v", err)
	}

	result, err := svc.CleanupOrphanedChunks(ctx, "u1")
	if err != nil {
		t.Fatalf("CleanupOrphanedChunks: %v", err)
	}

	if result.DirsRemoved != 1 {
		t.Errorf("dirs removed = %d, want 1", result.DirsRemoved)
	}

	if result.BytesFreed != 256 {
		t.Errorf("bytes freed = %d, want 256", result.BytesFreed)
	}

	if result.RecordsRemoved != 1 {
		t.Errorf("records removed = %d, want 1", result.RecordsRemoved)
	}

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("aged orphan directory should be removed")
	}

	for _, kept := range []string{"known", "new-orphan"} {
		if _, err := os.Stat(filepath.Join(chunksDir, kept)); err != nil {
			t.Errorf("directory %s should survive cleanup: %v", kept, err)
		}
	}

	var count int64
	svc.dbClient.GetDB().Model(&model.ChunkMetadata{}).Where("media_id = ?", "known").Count(&count)

	if count != 1 {
		t.Error("complete chunk record must survive")
	}
}

func TestCleanupOrphanedChunksAllUsers(t *testing.T) {
	svc, _ := newTestChunks(t)

	// 两个用户各留一个超龄孤儿目录，不传用户时全量扫描
	old := time.Now().Add(-svc.cfg.ChunkOrphanAge - time.Hour)

	for _, uid := range []string{"ua", "ub"} {
		dir := filepath.Join(svc.layout.ChunksDir(uid), "ghost")
		writeTestFile(t, filepath.Join(dir, "ghost_chunk_0000.bin"), 32)

		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("backdate dir: %v", err)
		}
	}

	result, err := svc.CleanupOrphanedChunks(context.Background(), "")
	if err != nil {
		t.Fatalf("CleanupOrphanedChunks: %v", err)
	}

	if result.DirsRemoved != 2 {
		t.Errorf("dirs removed = %d, want 2", result.DirsRemoved)
	}
}
