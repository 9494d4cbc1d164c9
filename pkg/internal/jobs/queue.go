package jobs

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid"

	"github.com/yeisme/transvault/pkg/audio"
	"github.com/yeisme/transvault/pkg/configs"
	"github.com/yeisme/transvault/pkg/internal/service"
	"github.com/yeisme/transvault/pkg/internal/types"
	"github.com/yeisme/transvault/pkg/log"
)

var jobEntropy = ulid.Monotonic(crand.Reader, 0)

// Queue 进程内后台任务队列：定时器驱动，每个周期并发处理
// 有限个待处理任务，任务与结果都只保存在内存中，不跨进程持久化。
type Queue struct {
	cfg    configs.StorageConfig
	reg    *service.Registry
	prober audio.Prober

	mu      sync.Mutex
	pending []string // FIFO，存任务 ID
	jobs    map[string]*types.JobInfo

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue 构造任务队列，Start 之前不会处理任何任务.
func NewQueue(cfg configs.StorageConfig, reg *service.Registry, prober audio.Prober) *Queue {
	if prober == nil {
		prober = audio.NopProber{}
	}

	return &Queue{
		cfg:    cfg,
		reg:    reg,
		prober: prober,
		jobs:   make(map[string]*types.JobInfo),
	}
}

// Enqueue 入队一个任务并返回任务 ID.
// 同一用户重复入队 storage_calculation 时，旧的待处理任务被新任务取代.
func (q *Queue) Enqueue(jobType types.JobType, userID, payload string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if jobType == types.JobStorageCalculation {
		q.dropPendingLocked(jobType, userID)
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), jobEntropy).String()

	q.jobs[id] = &types.JobInfo{
		ID:         id,
		Type:       jobType,
		UserID:     userID,
		Payload:    payload,
		Status:     types.JobPending,
		EnqueuedAt: time.Now(),
	}
	q.pending = append(q.pending, id)

	return id
}

// dropPendingLocked 删除同类型同用户的待处理任务（合并语义）.
func (q *Queue) dropPendingLocked(jobType types.JobType, userID string) {
	kept := q.pending[:0]

	for _, id := range q.pending {
		job := q.jobs[id]
		if job != nil && job.Type == jobType && job.UserID == userID {
			delete(q.jobs, id)
			continue
		}

		kept = append(kept, id)
	}

	q.pending = kept
}

// Start 启动调度循环，按配置周期处理任务直到 Stop 被调用.
func (q *Queue) Start() {
	ctx, cancel := context.WithCancel(context.Background())

	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)

	go func() {
		defer q.wg.Done()

		ticker := time.NewTicker(q.cfg.JobsTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.tick(ctx)
			}
		}
	}()
}

// Stop 停止调度循环并等待在途任务结束.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	q.wg.Wait()
}

// tick 取走至多 JobsPerTick 个待处理任务并发执行，然后修剪过期结果.
func (q *Queue) tick(ctx context.Context) {
	q.mu.Lock()

	n := q.cfg.JobsPerTick
	if n > len(q.pending) {
		n = len(q.pending)
	}

	batch := make([]*types.JobInfo, 0, n)

	for _, id := range q.pending[:n] {
		if job := q.jobs[id]; job != nil {
			now := time.Now()
			job.Status = types.JobRunning
			job.StartedAt = &now
			batch = append(batch, job)
		}
	}

	q.pending = q.pending[n:]
	q.mu.Unlock()

	var wg sync.WaitGroup

	for _, job := range batch {
		wg.Add(1)

		go func(job *types.JobInfo) {
			defer wg.Done()
			q.run(ctx, job)
		}(job)
	}

	wg.Wait()

	q.pruneFinished()
}

// run 执行单个任务并记录结果.
func (q *Queue) run(ctx context.Context, job *types.JobInfo) {
	l := log.Logger().With().Str("job_id", job.ID).Str("type", string(job.Type)).Logger()

	var err error

	switch job.Type {
	case types.JobStorageCalculation:
		_, err = q.reg.Quota.ForceRefreshUserStorage(ctx, job.UserID)
	case types.JobAudioDuration:
		if duration, ok := q.prober.DurationOf(ctx, job.Payload); ok {
			l.Info().Str("path", job.Payload).Float64("duration", duration).Msg("audio duration extracted")
		} else {
			err = fmt.Errorf("failed to probe duration of %s", job.Payload)
		}
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	job.FinishedAt = &now

	if err != nil {
		job.Status = types.JobFailed
		job.Error = err.Error()

		l.Error().Err(err).Msg("background job failed")

		return
	}

	job.Status = types.JobCompleted
}

// pruneFinished 按保留期移除已结束的任务记录.
func (q *Queue) pruneFinished() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	for id, job := range q.jobs {
		if job.FinishedAt == nil {
			continue
		}

		var retention time.Duration

		switch job.Status {
		case types.JobCompleted:
			retention = q.cfg.JobsCompletedRetention
		case types.JobFailed:
			retention = q.cfg.JobsFailedRetention
		default:
			continue
		}

		if now.Sub(*job.FinishedAt) > retention {
			delete(q.jobs, id)
		}
	}
}

// GetJob 返回任务快照，不存在时返回 nil.
func (q *Queue) GetJob(id string) *types.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil
	}

	snapshot := *job

	return &snapshot
}

// List 返回全部任务快照，按入队时间排序.
func (q *Queue) List() []types.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := make([]types.JobInfo, 0, len(q.jobs))
	for _, job := range q.jobs {
		list = append(list, *job)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].EnqueuedAt.Before(list[j].EnqueuedAt)
	})

	return list
}

// Stats 按状态统计队列中的任务数.
func (q *Queue) Stats() types.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats types.QueueStats

	for _, job := range q.jobs {
		switch job.Status {
		case types.JobPending:
			stats.Pending++
		case types.JobRunning:
			stats.Running++
		case types.JobCompleted:
			stats.Completed++
		case types.JobFailed:
			stats.Failed++
		}
	}

	return stats
}
