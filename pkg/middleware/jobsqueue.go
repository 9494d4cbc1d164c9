package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/jobs"
)

type jobsQueueKey struct{}

// JobsQueueMiddleware 将后台任务队列注入到context中.
func JobsQueueMiddleware(queue *jobs.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), jobsQueueKey{}, queue)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetJobsQueue 从context中获取后台任务队列.
func GetJobsQueue(c *gin.Context) *jobs.Queue {
	if queue, ok := c.Request.Context().Value(jobsQueueKey{}).(*jobs.Queue); ok {
		return queue
	}

	return nil
}
