package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/transvault/pkg/audio"
	"github.com/yeisme/transvault/pkg/internal/types"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// orphanedIndexVersion 当前索引文件格式版本.
const orphanedIndexVersion = 1

// duplicateSizeTolerance 重复媒体判定的大小容差，
// 容纳重新编码后容器/元数据带来的差异.
const duplicateSizeTolerance = 0.05

// OrphanedService 孤儿转写归档：项目或媒体删除后保留转写数据，
// 以小写媒体名为键索引，便于同名重新上传时提示恢复.
//
// 索引不加文件锁，同一用户的删除/恢复在上层请求处理中已串行化，
// 不同逻辑操作间的并发写接受 last-writer-wins.
type OrphanedService struct {
	layout Layout
	prober audio.Prober
}

// NewOrphanedService 创建孤儿归档服务.
func NewOrphanedService(_ context.Context, prober audio.Prober) *OrphanedService {
	if prober == nil {
		prober = audio.NopProber{}
	}

	return &OrphanedService{
		layout: NewLayout(),
		prober: prober,
	}
}

// Initialize 确保用户的归档目录存在，加载或创建索引文件.
func (s *OrphanedService) Initialize(userID string) (*types.OrphanedIndex, error) {
	if err := os.MkdirAll(s.layout.OrphanedDir(userID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create orphaned directory: %w", err)
	}

	index, err := s.loadIndex(userID)
	if err == nil {
		return index, nil
	}

	index = &types.OrphanedIndex{
		Version:        orphanedIndexVersion,
		LastUpdated:    time.Now(),
		Transcriptions: make(map[string][]types.OrphanedTranscription),
	}

	if err := s.saveIndex(userID, index); err != nil {
		return nil, err
	}

	return index, nil
}

// loadIndex 读取索引文件.
func (s *OrphanedService) loadIndex(userID string) (*types.OrphanedIndex, error) {
	data, err := os.ReadFile(s.layout.OrphanedIndexPath(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read orphaned index: %w", err)
	}

	var index types.OrphanedIndex
	if err := sonic.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode orphaned index: %w", err)
	}

	if index.Transcriptions == nil {
		index.Transcriptions = make(map[string][]types.OrphanedTranscription)
	}

	return &index, nil
}

// saveIndex 全量重写并落盘索引文件，每次变更立即持久化，不做批量.
func (s *OrphanedService) saveIndex(userID string, index *types.OrphanedIndex) error {
	index.Version = orphanedIndexVersion
	index.LastUpdated = time.Now()

	data, err := sonic.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode orphaned index: %w", err)
	}

	if err := os.WriteFile(s.layout.OrphanedIndexPath(userID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write orphaned index: %w", err)
	}

	return nil
}

// AddOrphanedTranscription 按小写媒体名入桶；桶内已有同 transcriptionId 的记录则原位替换.
func (s *OrphanedService) AddOrphanedTranscription(userID string, record types.OrphanedTranscription) error {
	index, err := s.Initialize(userID)
	if err != nil {
		return err
	}

	key := strings.ToLower(record.MediaName)
	bucket := index.Transcriptions[key]

	replaced := false

	for i := range bucket {
		if bucket[i].TranscriptionID == record.TranscriptionID {
			bucket[i] = record
			replaced = true

			break
		}
	}

	if !replaced {
		bucket = append(bucket, record)
	}

	index.Transcriptions[key] = bucket

	return s.saveIndex(userID, index)
}

// RemoveOrphanedTranscription 线性扫描所有桶，移除第一个匹配的记录；桶空则删桶.
func (s *OrphanedService) RemoveOrphanedTranscription(userID, transcriptionID string) (bool, error) {
	index, err := s.Initialize(userID)
	if err != nil {
		return false, err
	}

	for key, bucket := range index.Transcriptions {
		for i := range bucket {
			if bucket[i].TranscriptionID != transcriptionID {
				continue
			}

			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(index.Transcriptions, key)
			} else {
				index.Transcriptions[key] = bucket
			}

			return true, s.saveIndex(userID, index)
		}
	}

	return false, nil
}

// FindOrphanedTranscriptions 大小写不敏感查找，无匹配返回空切片.
func (s *OrphanedService) FindOrphanedTranscriptions(userID, mediaName string) ([]types.OrphanedTranscription, error) {
	index, err := s.Initialize(userID)
	if err != nil {
		return nil, err
	}

	bucket := index.Transcriptions[strings.ToLower(mediaName)]
	if bucket == nil {
		return []types.OrphanedTranscription{}, nil
	}

	return bucket, nil
}

// FindOrphanedTranscriptionsForMultipleMedia 批量查找，无匹配的名字不出现在结果里.
func (s *OrphanedService) FindOrphanedTranscriptionsForMultipleMedia(userID string, mediaNames []string) (map[string][]types.OrphanedTranscription, error) {
	index, err := s.Initialize(userID)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]types.OrphanedTranscription)

	for _, name := range mediaNames {
		if bucket := index.Transcriptions[strings.ToLower(name)]; len(bucket) > 0 {
			result[name] = bucket
		}
	}

	return result, nil
}

// CheckForDuplicateMedia 同名查找，给定大小时附加 5% 容差过滤；
// 缺少大小信息的记录不会被排除.
func (s *OrphanedService) CheckForDuplicateMedia(userID, mediaName string, size int64) (types.DuplicateCheckResult, error) {
	matches, err := s.FindOrphanedTranscriptions(userID, mediaName)
	if err != nil {
		return types.DuplicateCheckResult{}, err
	}

	if size <= 0 {
		return types.DuplicateCheckResult{HasDuplicates: len(matches) > 0, Matches: matches}, nil
	}

	filtered := make([]types.OrphanedTranscription, 0, len(matches))

	for _, m := range matches {
		if m.MediaSize <= 0 {
			filtered = append(filtered, m)

			continue
		}

		diff := math.Abs(float64(m.MediaSize-size)) / float64(size)
		if diff <= duplicateSizeTolerance {
			filtered = append(filtered, m)
		}
	}

	return types.DuplicateCheckResult{HasDuplicates: len(filtered) > 0, Matches: filtered}, nil
}

// CleanupIndex 剔除归档路径已不存在的记录，返回剔除数量.
func (s *OrphanedService) CleanupIndex(userID string) (int, error) {
	index, err := s.Initialize(userID)
	if err != nil {
		return 0, err
	}

	removed := 0

	for key, bucket := range index.Transcriptions {
		kept := bucket[:0]

		for _, record := range bucket {
			if _, err := os.Stat(record.ArchivedPath); err == nil {
				kept = append(kept, record)
			} else {
				removed++
			}
		}

		if len(kept) == 0 {
			delete(index.Transcriptions, key)
		} else {
			index.Transcriptions[key] = kept
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := s.saveIndex(userID, index); err != nil {
		return removed, err
	}

	nlog.Logger().Info().Str("user", userID).Int("removed", removed).Msg("orphaned index cleaned")

	return removed, nil
}
