package service

import (
	"os"
	"path/filepath"

	nlog "github.com/yeisme/transvault/pkg/log"
)

// CalculateDirectorySize 递归统计目录下所有文件的字节数.
// 不存在的根目录返回 0；单项访问失败只记录日志并跳过，绝不让整次遍历失败，
// 这是配额重算与分块清理统计共同依赖的弹性语义.
func CalculateDirectorySize(root string) int64 {
	info, err := os.Stat(root)
	if err != nil {
		return 0
	}

	if !info.IsDir() {
		return info.Size()
	}

	var total int64

	entries, err := os.ReadDir(root)
	if err != nil {
		nlog.Logger().Warn().Err(err).Str("dir", root).Msg("skip unreadable directory")

		return 0
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		if entry.IsDir() {
			total += CalculateDirectorySize(path)

			continue
		}

		fi, err := entry.Info()
		if err != nil {
			nlog.Logger().Warn().Err(err).Str("file", path).Msg("skip unreadable entry")

			continue
		}

		total += fi.Size()
	}

	return total
}
