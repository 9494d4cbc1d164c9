package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/types"
	"github.com/yeisme/transvault/pkg/middleware"
)

// EnqueueJob 入队一个后台任务并返回任务 ID。
// 同一用户重复入队 storage_calculation 时旧任务被合并取代。
//
//	@Summary	入队后台任务
//	@Tags		任务
//	@Accept		json
//	@Produce	json
//	@Success	202	{object}	map[string]string
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/jobs [post]
func EnqueueJob(c *gin.Context) {
	user, err := checkUser(c)
	if user == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	var body struct {
		Type    string `json:"type"    binding:"required,oneof=storage_calculation audio_duration_extraction"`
		Payload string `json:"payload"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queue := middleware.GetJobsQueue(c)
	if queue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job queue not initialized"})
		return
	}

	id := queue.Enqueue(types.JobType(body.Type), user, body.Payload)

	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

// ListJobs 列出队列中的全部任务快照。
//
//	@Summary	任务列表
//	@Tags		任务
//	@Produce	json
//	@Success	200	{array}		types.JobInfo
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/jobs [get]
func ListJobs(c *gin.Context) {
	queue := middleware.GetJobsQueue(c)
	if queue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job queue not initialized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": queue.List()})
}

// GetJobStatus 查询单个任务的状态。
//
//	@Summary	任务状态
//	@Tags		任务
//	@Produce	json
//	@Success	200	{object}	types.JobInfo
//	@Failure	404	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/jobs/{id} [get]
func GetJobStatus(c *gin.Context) {
	queue := middleware.GetJobsQueue(c)
	if queue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job queue not initialized"})
		return
	}

	job := queue.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetQueueStats 按状态统计队列中的任务数。
//
//	@Summary	队列统计
//	@Tags		任务
//	@Produce	json
//	@Success	200	{object}	types.QueueStats
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/jobs/stats [get]
func GetQueueStats(c *gin.Context) {
	queue := middleware.GetJobsQueue(c)
	if queue == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job queue not initialized"})
		return
	}

	c.JSON(http.StatusOK, queue.Stats())
}
