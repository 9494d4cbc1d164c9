// Package storage 处理存储客户端的初始化与聚合，包括数据库与键值缓存.
//
// Example:
//
// 初始化
//
//	 ctx := context.Background()
//	 mgr, err := storage.Init(ctx)
//
//		if err != nil {
//		    // 处理错误
//		}
//
// 获取存储客户端
//
//	dbClient := mgr.GetDBClient()
//	kvClient := mgr.GetKVClient()
package storage

import (
	"context"
	"errors"
	"sync"

	dbc "github.com/yeisme/transvault/pkg/internal/storage/db"
	kvc "github.com/yeisme/transvault/pkg/internal/storage/kv"
	nlog "github.com/yeisme/transvault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB *dbc.Client
	KV *kvc.Client
}

var (
	mgr     *Manager
	mgrOnce sync.Once
)

// Init 初始化默认存储，使用全局配置.重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	var err error

	mgrOnce.Do(func() {
		m := &Manager{}

		// DB
		if dbi, e := dbc.New(ctx); e != nil {
			err = e

			return
		} else {
			m.DB = dbi
		}

		// KV
		if kvi, e := kvc.NewKVClient(ctx); e != nil {
			err = e

			return
		} else {
			m.KV = kvi
		}

		mgr = m

		nlog.Logger().Info().Msg("storage manager initialized")
	})

	return mgr, err
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// Close 关闭全部存储连接.
func (m *Manager) Close() error {
	var errs []error

	if m.DB != nil && m.DB.GetDB() != nil {
		if sqlDB, err := m.DB.GetDB().DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}

	if m.KV != nil && m.KV.KVStore != nil {
		errs = append(errs, m.KV.Close())
	}

	return errors.Join(errs...)
}
