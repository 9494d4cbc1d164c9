package service

import (
	"fmt"
	"path/filepath"

	"github.com/yeisme/transvault/pkg/configs"
)

// Layout 把存储根目录映射为各用途的子目录，所有磁盘路径统一从这里生成.
//
// 目录结构（相对用户根）：
//
//	projects/<projectId>/media/<mediaId>/...
//	orphaned/orphaned-index.json
//	orphaned/orphaned_<projectId>_<mediaId>_<ts>/
//	chunks/<mediaId>/<mediaId>_chunk_<0000>.bin
//	media/<mediaId>/<fileName>          服务器层级的媒体文件
type Layout struct {
	BasePath string
}

// NewLayout 从全局配置创建 Layout.
func NewLayout() Layout {
	return Layout{BasePath: configs.GetConfig().Storage.BasePath}
}

// UserRoot 用户存储根目录.
func (l Layout) UserRoot(userID string) string {
	return filepath.Join(l.BasePath, userID)
}

// ProjectsDir 用户项目目录.
func (l Layout) ProjectsDir(userID string) string {
	return filepath.Join(l.UserRoot(userID), "projects")
}

// MediaDir 服务器层级媒体目录.
func (l Layout) MediaDir(userID, mediaID string) string {
	return filepath.Join(l.UserRoot(userID), "media", mediaID)
}

// OrphanedDir 孤儿转写归档目录.
func (l Layout) OrphanedDir(userID string) string {
	return filepath.Join(l.UserRoot(userID), "orphaned")
}

// OrphanedIndexPath 孤儿索引文件路径.
func (l Layout) OrphanedIndexPath(userID string) string {
	return filepath.Join(l.OrphanedDir(userID), "orphaned-index.json")
}

// ChunksDir 用户分块根目录.
func (l Layout) ChunksDir(userID string) string {
	return filepath.Join(l.UserRoot(userID), "chunks")
}

// MediaChunkDir 单个媒体的分块目录.
func (l Layout) MediaChunkDir(userID, mediaID string) string {
	return filepath.Join(l.ChunksDir(userID), mediaID)
}

// ChunkFileName 分块文件名，由媒体 ID 与零填充序号确定性生成.
func ChunkFileName(mediaID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d.bin", mediaID, index)
}

// ChunkID 分块标识，与文件名去掉扩展名一致.
func ChunkID(mediaID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", mediaID, index)
}
