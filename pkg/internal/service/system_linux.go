//go:build linux

package service

import (
	"fmt"
	"syscall"

	"github.com/yeisme/transvault/pkg/internal/types"
)

// GetSystemStorage 返回存储根所在文件系统的磁盘空间信息.
func (s *QuotaService) GetSystemStorage() (types.SystemStorageInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.cfg.BasePath, &stat); err != nil {
		return types.SystemStorageInfo{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	total := int64(stat.Blocks) * stat.Bsize
	available := int64(stat.Bavail) * stat.Bsize

	return types.SystemStorageInfo{
		TotalBytes:     total,
		UsedBytes:      total - int64(stat.Bfree)*stat.Bsize,
		AvailableBytes: available,
	}, nil
}
