//go:build !linux

package service

import (
	"github.com/yeisme/transvault/pkg/internal/types"
)

// GetSystemStorage 非 Linux 平台不提供磁盘空间信息.
func (s *QuotaService) GetSystemStorage() (types.SystemStorageInfo, error) {
	return types.SystemStorageInfo{}, nil
}
