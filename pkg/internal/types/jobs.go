package types

import "time"

// JobType 后台任务类型.
type JobType string

const (
	JobStorageCalculation JobType = "storage_calculation"
	JobAudioDuration      JobType = "audio_duration_extraction"
)

// JobStatus 后台任务状态.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobInfo 队列中单个任务的快照.
type JobInfo struct {
	ID         string     `json:"id"`
	Type       JobType    `json:"type"`
	UserID     string     `json:"user_id"`
	Payload    string     `json:"payload,omitempty"`
	Status     JobStatus  `json:"status"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// QueueStats 队列状态端点的返回结构.
type QueueStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
