package handle

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/service"
	"github.com/yeisme/transvault/pkg/log"
)

// ChunkServerFile 把服务器上的一个文件切分为分块集合。
//
//	@Summary	切分服务器文件
//	@Tags		分块
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	types.ChunkFileResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/file [post]
func ChunkServerFile(c *gin.Context) {
	mediaID := c.Param("mediaId")

	var body struct {
		SourcePath string `json:"source_path" binding:"required"`
		FileName   string `json:"file_name"   binding:"required"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	do(c, "chunk file failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.ChunkFile(c.Request.Context(), body.SourcePath, mediaID, user, body.FileName), nil
	})
}

// UploadChunk 接收单个分块的原始字节并落盘。
//
//	@Summary	上传单个分块
//	@Tags		分块
//	@Accept		octet-stream
//	@Produce	json
//	@Success	200	{object}	types.StoreChunkResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/{index} [post]
func UploadChunk(c *gin.Context) {
	mediaID := c.Param("mediaId")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk index"})
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read chunk body"})
		return
	}

	do(c, "store chunk failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.StoreChunk(c.Request.Context(), data, index, mediaID, user), nil
	})
}

// GetChunkProgress 返回分块集合的完成进度。
//
//	@Summary	分块进度
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	types.ChunkProgress
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/progress [get]
func GetChunkProgress(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "chunk progress failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.GetProgress(c.Request.Context(), mediaID, user)
	})
}

// ResumeChunkUpload 返回续传所需的缺失分块清单。
//
//	@Summary	分块续传信息
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	types.ResumeInfo
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/resume [get]
func ResumeChunkUpload(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "resume info failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.ResumeUpload(c.Request.Context(), mediaID, user)
	})
}

// VerifyChunks 校验分块集合的完整性，缺失与损坏分开上报。
//
//	@Summary	分块完整性校验
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	types.IntegrityReport
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/verify [get]
func VerifyChunks(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "integrity check failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.VerifyChunkIntegrity(c.Request.Context(), mediaID, user)
	})
}

// DownloadAssembled 以流方式重组分块并下载完整文件。
//
//	@Summary	下载重组文件
//	@Tags		分块
//	@Produce	octet-stream
//	@Success	200	{file}		binary
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId}/assemble [get]
func DownloadAssembled(c *gin.Context) {
	mediaID := c.Param("mediaId")

	user, err := checkUser(c)
	if user == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	reg := service.RegistryFrom(c.Request.Context())
	if reg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "services not initialized"})
		return
	}

	stream, err := reg.Chunks.AssembleChunksStream(c.Request.Context(), mediaID, user)
	if err != nil {
		log.Logger().Error().Err(err).Str("media", mediaID).Msg("assemble stream failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}
	defer stream.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, stream); err != nil {
		log.Logger().Warn().Err(err).Str("media", mediaID).Msg("assemble download interrupted")
	}
}

// DeleteChunks 删除媒体的全部分块与元数据。
//
//	@Summary	删除分块集合
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/{mediaId} [delete]
func DeleteChunks(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "delete chunks failed", func(reg *service.Registry, user string) (any, error) {
		if err := reg.Chunks.DeleteMediaChunks(c.Request.Context(), mediaID, user); err != nil {
			return nil, err
		}

		return gin.H{"message": "chunks deleted"}, nil
	})
}

// GetChunkStats 返回当前用户分块存储的聚合统计。
//
//	@Summary	分块存储统计
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	types.ChunkStorageStats
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/stats [get]
func GetChunkStats(c *gin.Context) {
	do(c, "chunk stats failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.GetStorageStats(c.Request.Context(), user)
	})
}

// CleanupChunks 立即回收当前用户的孤儿分块目录。
//
//	@Summary	清理孤儿分块
//	@Tags		分块
//	@Produce	json
//	@Success	200	{object}	types.CleanupResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/chunks/cleanup [post]
func CleanupChunks(c *gin.Context) {
	do(c, "chunk cleanup failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Chunks.CleanupOrphanedChunks(c.Request.Context(), user)
	})
}
