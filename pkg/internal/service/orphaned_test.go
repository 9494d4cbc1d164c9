package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/transvault/pkg/internal/types"
)

// seedTranscription 在活跃项目布局里放一份转写数据，返回 transcription 目录.
func seedTranscription(t *testing.T, svc *OrphanedService, userID, projectID, mediaID string, blocks []map[string]any) string {
	t.Helper()

	dir := filepath.Join(svc.layout.ProjectsDir(userID), projectID, "media", mediaID, "transcription")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir transcription: %v", err)
	}

	data := types.TranscriptionData{Blocks: blocks, LastModified: time.Now()}

	raw, err := sonic.MarshalIndent(&data, "", "  ")
	if err != nil {
		t.Fatalf("encode transcription: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "data.json"), raw, 0o644); err != nil {
		t.Fatalf("write data.json: %v", err)
	}

	return dir
}

func TestInitializeCreatesIndex(t *testing.T) {
	svc := newTestOrphaned(t)

	index, err := svc.Initialize("u1")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if index.Version != orphanedIndexVersion || len(index.Transcriptions) != 0 {
		t.Errorf("unexpected fresh index: %+v", index)
	}

	if _, err := os.Stat(svc.layout.OrphanedIndexPath("u1")); err != nil {
		t.Errorf("index file not written: %v", err)
	}
}

func TestAddFindReplaceRemove(t *testing.T) {
	svc := newTestOrphaned(t)

	first := types.OrphanedTranscription{TranscriptionID: "t1", MediaName: "Video.MP4", ArchivedPath: "/tmp/a"}
	second := types.OrphanedTranscription{TranscriptionID: "t2", MediaName: "video.mp4", ArchivedPath: "/tmp/b"}

	if err := svc.AddOrphanedTranscription("u1", first); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.AddOrphanedTranscription("u1", second); err != nil {
		t.Fatalf("add: %v", err)
	}

	// 查找大小写不敏感，两条同名记录在一个桶里
	found, err := svc.FindOrphanedTranscriptions("u1", "VIDEO.mp4")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if len(found) != 2 {
		t.Fatalf("found %d records, want 2", len(found))
	}

	// 同 transcriptionId 再次入桶是原位替换
	first.ArchivedPath = "/tmp/a2"
	if err := svc.AddOrphanedTranscription("u1", first); err != nil {
		t.Fatalf("replace: %v", err)
	}

	found, _ = svc.FindOrphanedTranscriptions("u1", "video.mp4")
	if len(found) != 2 {
		t.Fatalf("found %d records after replace, want 2", len(found))
	}

	for _, r := range found {
		if r.TranscriptionID == "t1" && r.ArchivedPath != "/tmp/a2" {
			t.Errorf("record t1 not replaced: %+v", r)
		}
	}

	// 批量查找只返回有命中的名字
	batch, err := svc.FindOrphanedTranscriptionsForMultipleMedia("u1", []string{"Video.MP4", "missing.wav"})
	if err != nil {
		t.Fatalf("batch find: %v", err)
	}

	if len(batch) != 1 || len(batch["Video.MP4"]) != 2 {
		t.Errorf("unexpected batch result: %+v", batch)
	}

	removed, err := svc.RemoveOrphanedTranscription("u1", "t1")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}

	removed, err = svc.RemoveOrphanedTranscription("u1", "t1")
	if err != nil || removed {
		t.Fatalf("second remove: removed=%v err=%v", removed, err)
	}

	found, _ = svc.FindOrphanedTranscriptions("u1", "video.mp4")
	if len(found) != 1 || found[0].TranscriptionID != "t2" {
		t.Errorf("unexpected bucket after remove: %+v", found)
	}
}

func TestCheckForDuplicateMedia(t *testing.T) {
	svc := newTestOrphaned(t)

	records := []types.OrphanedTranscription{
		{TranscriptionID: "sized", MediaName: "take.mp3", MediaSize: 1000},
		{TranscriptionID: "unsized", MediaName: "take.mp3"},
	}
	for _, r := range records {
		if err := svc.AddOrphanedTranscription("u1", r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// 4% 偏差在容差内
	result, err := svc.CheckForDuplicateMedia("u1", "take.mp3", 1040)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if !result.HasDuplicates || len(result.Matches) != 2 {
		t.Errorf("4%% diff should match sized and unsized records: %+v", result)
	}

	// 10% 偏差超出容差，只剩无大小信息的记录
	result, err = svc.CheckForDuplicateMedia("u1", "take.mp3", 1100)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if len(result.Matches) != 1 || result.Matches[0].TranscriptionID != "unsized" {
		t.Errorf("10%% diff should only keep unsized record: %+v", result)
	}

	// 没有大小信息时不过滤
	result, err = svc.CheckForDuplicateMedia("u1", "take.mp3", 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if len(result.Matches) != 2 {
		t.Errorf("size 0 should skip filtering: %+v", result)
	}

	result, err = svc.CheckForDuplicateMedia("u1", "other.mp3", 1000)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if result.HasDuplicates {
		t.Error("unknown media should have no duplicates")
	}
}

func TestCleanupIndex(t *testing.T) {
	svc := newTestOrphaned(t)

	liveDir := filepath.Join(svc.layout.OrphanedDir("u1"), "orphaned_p1_m1_1")
	if err := os.MkdirAll(liveDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	records := []types.OrphanedTranscription{
		{TranscriptionID: "live", MediaName: "a.mp4", ArchivedPath: liveDir},
		{TranscriptionID: "gone", MediaName: "b.mp4", ArchivedPath: filepath.Join(svc.layout.OrphanedDir("u1"), "missing")},
	}
	for _, r := range records {
		if err := svc.AddOrphanedTranscription("u1", r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	pruned, err := svc.CleanupIndex("u1")
	if err != nil {
		t.Fatalf("CleanupIndex: %v", err)
	}

	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if found, _ := svc.FindOrphanedTranscriptions("u1", "b.mp4"); len(found) != 0 {
		t.Error("dangling record should be pruned")
	}

	if found, _ := svc.FindOrphanedTranscriptions("u1", "a.mp4"); len(found) != 1 {
		t.Error("live record should survive")
	}
}

func TestArchiveTranscription(t *testing.T) {
	svc := newTestOrphaned(t)
	ctx := context.Background()

	blocks := []map[string]any{{"id": "b1", "text": "hello"}}
	trDir := seedTranscription(t, svc, "u1", "p1", "m1", blocks)

	mediaPath := filepath.Join(t.TempDir(), "Video.MP4")
	if err := os.WriteFile(mediaPath, make([]byte, 1000), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	record, err := svc.ArchiveTranscription(ctx, ArchiveRequest{
		UserID:           "u1",
		ProjectID:        "p1",
		ProjectName:      "Demo",
		MediaID:          "m1",
		MediaName:        "Video.MP4",
		TranscriptionDir: trDir,
		MediaPath:        mediaPath,
	})
	if err != nil {
		t.Fatalf("ArchiveTranscription: %v", err)
	}

	if !strings.HasPrefix(record.TranscriptionID, "p1_m1_") {
		t.Errorf("transcription id = %q, want p1_m1_<ts>", record.TranscriptionID)
	}

	if record.MediaSize != 1000 {
		t.Errorf("media size = %d, want 1000", record.MediaSize)
	}

	// 转写目录被物理搬走
	if _, err := os.Stat(trDir); !os.IsNotExist(err) {
		t.Error("source transcription directory should be moved away")
	}

	dataPath := filepath.Join(record.ArchivedPath, "transcription", "data.json")

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatalf("archived data.json missing: %v", err)
	}

	var data types.TranscriptionData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode archived data: %v", err)
	}

	if data.OrphanedFrom == nil || data.OrphanedFrom.ProjectID != "p1" || data.OrphanedFrom.MediaName != "Video.MP4" {
		t.Errorf("orphanedFrom metadata not stamped: %+v", data.OrphanedFrom)
	}

	found, err := svc.FindOrphanedTranscriptions("u1", "video.mp4")
	if err != nil || len(found) != 1 {
		t.Fatalf("archived record not indexed: %v %v", found, err)
	}
}

func TestRebuildIndex(t *testing.T) {
	svc := newTestOrphaned(t)
	ctx := context.Background()

	// 新格式归档，带内嵌 orphanedFrom 元数据
	trDir := seedTranscription(t, svc, "u1", "p1", "m1", []map[string]any{{"id": "b1"}})
	if _, err := svc.ArchiveTranscription(ctx, ArchiveRequest{
		UserID: "u1", ProjectID: "p1", MediaID: "m1", MediaName: "Metadata.MP4", TranscriptionDir: trDir,
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	orphanedDir := svc.layout.OrphanedDir("u1")

	// 新格式目录名但没有元数据：靠目录名解析
	legacyDir := filepath.Join(orphanedDir, "orphaned_p2_m2_1700000000000", "transcription")
	if err := os.MkdirAll(legacyDir, 0o755); err != nil {
		t.Fatalf("mkdir legacy: %v", err)
	}

	raw, _ := sonic.Marshal(&types.TranscriptionData{Blocks: []map[string]any{{"id": "x"}}})
	if err := os.WriteFile(filepath.Join(legacyDir, "data.json"), raw, 0o644); err != nil {
		t.Fatalf("write legacy data: %v", err)
	}

	// 旧格式的单文件归档
	if err := os.WriteFile(filepath.Join(orphanedDir, "orphan_1700000000000_song.mp3"), raw, 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	// 两种模式都解析不出的条目
	if err := os.MkdirAll(filepath.Join(orphanedDir, "orphaned_bad"), 0o755); err != nil {
		t.Fatalf("mkdir junk: %v", err)
	}

	// 索引丢失后全量重建
	if err := os.Remove(svc.layout.OrphanedIndexPath("u1")); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	result, err := svc.RebuildIndex("u1")
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}

	if result.Recovered != 3 || result.Skipped != 1 {
		t.Fatalf("rebuild = %+v, want 3 recovered / 1 skipped", result)
	}

	if found, _ := svc.FindOrphanedTranscriptions("u1", "metadata.mp4"); len(found) != 1 {
		t.Error("metadata-stamped archive not recovered")
	}

	found, _ := svc.FindOrphanedTranscriptions("u1", "m2")
	if len(found) != 1 {
		t.Fatalf("name-parsed archive not recovered: %+v", found)
	}

	if found[0].ProjectID != "p2" {
		t.Errorf("project id = %q, want p2", found[0].ProjectID)
	}

	if found[0].OrphanedAt.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", found[0].OrphanedAt.UnixMilli())
	}

	if found, _ := svc.FindOrphanedTranscriptions("u1", "song.mp3"); len(found) != 1 {
		t.Error("single-file legacy archive not recovered")
	}
}

func TestRestoreOverride(t *testing.T) {
	svc := newTestOrphaned(t)
	ctx := context.Background()

	blocks := []map[string]any{{"id": "b1", "text": "hello"}, {"id": "b2", "text": "world"}}
	trDir := seedTranscription(t, svc, "u1", "p1", "m1", blocks)

	record, err := svc.ArchiveTranscription(ctx, ArchiveRequest{
		UserID: "u1", ProjectID: "p1", MediaID: "m1", MediaName: "v.mp4", TranscriptionDir: trDir,
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	result := svc.RestoreTranscription("u1", record.TranscriptionID, "p9", "m9", types.RestoreOverride)
	if !result.Success {
		t.Fatalf("restore failed: %s", result.Error)
	}

	if result.BlocksRestored != 2 || result.TotalBlocks != 2 {
		t.Errorf("result = %+v, want 2/2 blocks", result)
	}

	targetPath := filepath.Join(svc.layout.ProjectsDir("u1"), "p9", "media", "m9", "transcription", "data.json")

	raw, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("restored data missing: %v", err)
	}

	var data types.TranscriptionData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode restored data: %v", err)
	}

	if len(data.Blocks) != 2 || data.OrphanedFrom != nil {
		t.Errorf("unexpected restored data: %+v", data)
	}

	// 恢复后索引记录与归档目录一并清除
	if found, _ := svc.FindOrphanedTranscriptions("u1", "v.mp4"); len(found) != 0 {
		t.Error("restored record should leave the index")
	}

	if _, err := os.Stat(record.ArchivedPath); !os.IsNotExist(err) {
		t.Error("archive directory should be removed after restore")
	}
}

func TestRestoreAppend(t *testing.T) {
	svc := newTestOrphaned(t)
	ctx := context.Background()

	trDir := seedTranscription(t, svc, "u1", "p1", "m1", []map[string]any{
		{"id": "a1", "text": "archived one"},
		{"id": "a2", "text": "archived two"},
	})

	record, err := svc.ArchiveTranscription(ctx, ArchiveRequest{
		UserID: "u1", ProjectID: "p1", MediaID: "m1", MediaName: "v.mp4", TranscriptionDir: trDir,
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	// 目标媒体已有一份转写
	seedTranscription(t, svc, "u1", "p9", "m9", []map[string]any{{"id": "b1", "text": "existing"}})

	result := svc.RestoreTranscription("u1", record.TranscriptionID, "p9", "m9", types.RestoreAppend)
	if !result.Success {
		t.Fatalf("restore failed: %s", result.Error)
	}

	if result.BlocksRestored != 2 || result.TotalBlocks != 3 {
		t.Errorf("result = %+v, want 2 restored / 3 total", result)
	}

	targetPath := filepath.Join(svc.layout.ProjectsDir("u1"), "p9", "media", "m9", "transcription", "data.json")
	raw, _ := os.ReadFile(targetPath)

	var data types.TranscriptionData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode merged data: %v", err)
	}

	if data.Blocks[0]["_source"] != "original" {
		t.Errorf("existing block not tagged original: %+v", data.Blocks[0])
	}

	for _, block := range data.Blocks[1:] {
		if block["_source"] != "restored" {
			t.Errorf("restored block not tagged: %+v", block)
		}

		id, _ := block["id"].(string)
		if !strings.Contains(id, "-restored-") {
			t.Errorf("restored block id not rewritten: %q", id)
		}
	}

	if len(data.MergeHistory) != 1 || data.MergeHistory[0].BlocksAdded != 2 {
		t.Errorf("merge history = %+v", data.MergeHistory)
	}
}

func TestRestoreAppendDeduplicates(t *testing.T) {
	svc := newTestOrphaned(t)

	targetPath := filepath.Join(t.TempDir(), "data.json")
	archived := &types.TranscriptionData{Blocks: []map[string]any{{"id": "a1"}}}

	if result := svc.restoreAppend(targetPath, "tid-1", archived); !result.Success {
		t.Fatalf("first append failed: %s", result.Error)
	}

	result := svc.restoreAppend(targetPath, "tid-1", archived)
	if result.Success {
		t.Fatal("second append of same source should be rejected")
	}

	if !strings.Contains(result.Error, "already merged into target") {
		t.Errorf("error = %q, want merge rejection", result.Error)
	}
}

func TestRestoreUnknownTranscription(t *testing.T) {
	svc := newTestOrphaned(t)

	result := svc.RestoreTranscription("u1", "missing", "p1", "m1", types.RestoreOverride)
	if result.Success || !strings.Contains(result.Error, "not found") {
		t.Errorf("unexpected result: %+v", result)
	}
}
