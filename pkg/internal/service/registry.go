// Package service 实现存储配额与生命周期子系统的核心服务：
// 配额缓存、目录用量计算、分块存储、孤儿转写归档与存储层级迁移.
package service

import (
	"context"

	"github.com/yeisme/transvault/pkg/audio"
)

// Registry 聚合进程内唯一的一组核心服务，app 启动时构造一次，
// 经中间件注入请求上下文供 handler 取用.
type Registry struct {
	Quota    *QuotaService
	Chunks   *ChunkService
	Orphaned *OrphanedService
	Hybrid   *HybridService
}

// NewRegistry 构造并装配全部核心服务，c 需携带 storage.Manager.
func NewRegistry(c context.Context, prober audio.Prober) *Registry {
	quota := NewQuotaService(c)
	chunks := NewChunkService(c, quota)

	return &Registry{
		Quota:    quota,
		Chunks:   chunks,
		Orphaned: NewOrphanedService(c, prober),
		Hybrid:   NewHybridService(c, chunks, quota),
	}
}

type registryKey struct{}

// WithRegistry 把服务注册表放入 context.
func WithRegistry(ctx context.Context, reg *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, reg)
}

// RegistryFrom 从 context 取服务注册表，不存在时返回 nil.
func RegistryFrom(ctx context.Context) *Registry {
	if reg, ok := ctx.Value(registryKey{}).(*Registry); ok {
		return reg
	}

	return nil
}
