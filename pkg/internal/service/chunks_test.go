package service

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // 与实现一致的内容指纹
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/yeisme/transvault/pkg/internal/model"
)

// testPayload 生成确定性的测试内容.
func testPayload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return data
}

func writeSourceFile(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := testPayload(size)
	path := filepath.Join(t.TempDir(), "source.bin")

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	return path, data
}

func TestChunkFileRoundTrip(t *testing.T) {
	svc, _ := newTestChunks(t)
	ctx := context.Background()

	// 预置新鲜配额行，避免懒创建路径触发后台重算干扰用量断言
	seed := model.UserStorageQuota{UserID: "u1", QuotaLimit: 500 * oneMB}
	if err := svc.dbClient.GetDB().Create(&seed).Error; err != nil {
		t.Fatalf("seed quota row: %v", err)
	}

	// 2.5 个分块大小，最后一块是半块
	src, data := writeSourceFile(t, 2560)

	result := svc.ChunkFile(ctx, src, "m1", "u1", "video.mp4")
	if !result.Success {
		t.Fatalf("ChunkFile failed: %s", result.Error)
	}

	if result.TotalChunks != 3 || result.TotalSize != 2560 {
		t.Errorf("result = %d chunks / %d bytes, want 3 / 2560", result.TotalChunks, result.TotalSize)
	}

	// 磁盘上三个零填充命名的分块文件
	chunkDir := svc.layout.MediaChunkDir("u1", "m1")

	for i := 0; i < 3; i++ {
		if _, err := os.Stat(filepath.Join(chunkDir, ChunkFileName("m1", i))); err != nil {
			t.Errorf("chunk %d missing: %v", i, err)
		}
	}

	meta, err := svc.GetChunkInfo(ctx, "m1", "u1")
	if err != nil || meta == nil {
		t.Fatalf("GetChunkInfo: meta=%v err=%v", meta, err)
	}

	sum := md5.Sum(data) //nolint:gosec
	if meta.Checksum != hex.EncodeToString(sum[:]) {
		t.Error("whole-file checksum mismatch")
	}

	if !meta.IsComplete || meta.TotalChunks != 3 || meta.OriginalFilename != "video.mp4" {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	// 重组逐字节还原
	assembled, err := svc.AssembleChunks(ctx, "m1", "u1")
	if err != nil {
		t.Fatalf("AssembleChunks: %v", err)
	}

	if !bytes.Equal(assembled, data) {
		t.Error("assembled bytes differ from source")
	}

	stream, err := svc.AssembleChunksStream(ctx, "m1", "u1")
	if err != nil {
		t.Fatalf("AssembleChunksStream: %v", err)
	}

	streamed, err := io.ReadAll(stream)
	stream.Close()

	if err != nil || !bytes.Equal(streamed, data) {
		t.Errorf("streamed assembly mismatch, err=%v", err)
	}

	progress, err := svc.GetProgress(ctx, "m1", "u1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}

	if !progress.IsComplete || progress.Percent != 100 {
		t.Errorf("progress = %+v, want complete", progress)
	}

	// 分块入库后配额增量生效
	var row model.UserStorageQuota
	if err := svc.dbClient.GetDB().Where("user_id = ?", "u1").First(&row).Error; err != nil {
		t.Fatalf("quota row: %v", err)
	}

	if row.QuotaUsed != 2560 {
		t.Errorf("quota used = %d, want 2560", row.QuotaUsed)
	}
}

func TestChunkFileQuotaExceeded(t *testing.T) {
	svc, quota := newTestChunks(t)
	quota.cfg.DefaultQuotaBytes = 1024

	src, _ := writeSourceFile(t, 5000)

	result := svc.ChunkFile(context.Background(), src, "m2", "u2", "")
	if result.Success {
		t.Fatal("over-quota chunking should fail")
	}

	// 拒绝发生在任何磁盘写入之前
	if _, err := os.Stat(svc.layout.MediaChunkDir("u2", "m2")); !os.IsNotExist(err) {
		t.Error("chunk directory must not be created on quota rejection")
	}
}

func TestChunkFileMissingSource(t *testing.T) {
	svc, _ := newTestChunks(t)

	result := svc.ChunkFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"), "m3", "u3", "")
	if result.Success {
		t.Fatal("missing source should fail")
	}
}

func TestResumeUploadAndStoreChunk(t *testing.T) {
	svc, _ := newTestChunks(t)
	ctx := context.Background()

	src, data := writeSourceFile(t, 3072)

	if result := svc.ChunkFile(ctx, src, "m4", "u4", ""); !result.Success {
		t.Fatalf("ChunkFile failed: %s", result.Error)
	}

	chunkDir := svc.layout.MediaChunkDir("u4", "m4")

	if err := os.Remove(filepath.Join(chunkDir, ChunkFileName("m4", 1))); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}

	progress, err := svc.GetProgress(ctx, "m4", "u4")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}

	if progress.CompletedChunks != 2 || progress.IsComplete {
		t.Errorf("progress = %+v, want 2/3 incomplete", progress)
	}

	resume, err := svc.ResumeUpload(ctx, "m4", "u4")
	if err != nil {
		t.Fatalf("ResumeUpload: %v", err)
	}

	if !resume.CanResume || !reflect.DeepEqual(resume.MissingChunks, []int{1}) {
		t.Errorf("resume = %+v, want missing [1]", resume)
	}

	// 补传缺失分块后恢复完整
	store := svc.StoreChunk(ctx, data[1024:2048], 1, "m4", "u4")
	if !store.Success || store.ChunkID != "m4_chunk_0001" {
		t.Fatalf("StoreChunk = %+v", store)
	}

	progress, err = svc.GetProgress(ctx, "m4", "u4")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}

	if !progress.IsComplete {
		t.Errorf("progress after re-upload = %+v, want complete", progress)
	}
}

func TestResumeUploadUnknownMedia(t *testing.T) {
	svc, _ := newTestChunks(t)

	resume, err := svc.ResumeUpload(context.Background(), "nope", "u4")
	if err != nil {
		t.Fatalf("ResumeUpload: %v", err)
	}

	if resume.CanResume {
		t.Error("unknown media must not be resumable")
	}
}

func TestVerifyChunkIntegrity(t *testing.T) {
	svc, _ := newTestChunks(t)
	ctx := context.Background()

	src, _ := writeSourceFile(t, 3072)

	if result := svc.ChunkFile(ctx, src, "m5", "u5", ""); !result.Success {
		t.Fatalf("ChunkFile failed: %s", result.Error)
	}

	report, err := svc.VerifyChunkIntegrity(ctx, "m5", "u5")
	if err != nil {
		t.Fatalf("VerifyChunkIntegrity: %v", err)
	}

	if !report.IsValid {
		t.Fatalf("fresh chunk set should be valid: %+v", report)
	}

	chunkDir := svc.layout.MediaChunkDir("u5", "m5")

	// 同大小不同内容：损坏
	if err := os.WriteFile(filepath.Join(chunkDir, ChunkFileName("m5", 1)), make([]byte, 1024), 0o644); err != nil {
		t.Fatalf("corrupt chunk: %v", err)
	}

	// 删除：缺失
	if err := os.Remove(filepath.Join(chunkDir, ChunkFileName("m5", 2))); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}

	report, err = svc.VerifyChunkIntegrity(ctx, "m5", "u5")
	if err != nil {
		t.Fatalf("VerifyChunkIntegrity: %v", err)
	}

	if report.IsValid {
		t.Fatal("damaged chunk set reported valid")
	}

	if !reflect.DeepEqual(report.CorruptedChunks, []int{1}) {
		t.Errorf("corrupted = %v, want [1]", report.CorruptedChunks)
	}

	if !reflect.DeepEqual(report.MissingChunks, []int{2}) {
		t.Errorf("missing = %v, want [2]", report.MissingChunks)
	}
}

func TestDeleteMediaChunks(t *testing.T) {
	svc, _ := newTestChunks(t)
	ctx := context.Background()

	src, _ := writeSourceFile(t, 2048)

	if result := svc.ChunkFile(ctx, src, "m6", "u6", ""); !result.Success {
		t.Fatalf("ChunkFile failed: %s", result.Error)
	}

	if err := svc.DeleteMediaChunks(ctx, "m6", "u6"); err != nil {
		t.Fatalf("DeleteMediaChunks: %v", err)
	}

	if _, err := os.Stat(svc.layout.MediaChunkDir("u6", "m6")); !os.IsNotExist(err) {
		t.Error("chunk directory should be gone")
	}

	meta, err := svc.GetChunkInfo(ctx, "m6", "u6")
	if err != nil {
		t.Fatalf("GetChunkInfo: %v", err)
	}

	if meta != nil {
		t.Error("metadata row should be gone")
	}

	// 幂等：目录已不存在也不报错
	if err := svc.DeleteMediaChunks(ctx, "m6", "u6"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestAssembleChunksUnknownMedia(t *testing.T) {
	svc, _ := newTestChunks(t)

	if _, err := svc.AssembleChunks(context.Background(), "nope", "u7"); err == nil {
		t.Error("expected error for unknown chunk set")
	}
}

func TestGetStorageRecommendation(t *testing.T) {
	svc, _ := newTestChunks(t)

	if rec := svc.GetStorageRecommendation(10, true); rec.Recommended != string(model.StorageLocal) {
		t.Errorf("offline preference = %q, want local", rec.Recommended)
	}

	if rec := svc.GetStorageRecommendation(svc.cfg.LargeFileThreshold+1, false); rec.Recommended != string(model.StorageServerChunked) {
		t.Errorf("large file = %q, want server_chunked", rec.Recommended)
	}

	if rec := svc.GetStorageRecommendation(10, false); rec.Recommended != string(model.StorageServer) {
		t.Errorf("default = %q, want server", rec.Recommended)
	}
}
