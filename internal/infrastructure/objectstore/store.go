// Package objectstore 封装对象存储访问：对象写入/删除、前缀批量删除与签名读取 URL。
// 服务层只依赖 Store 接口；GCS 为生产实现，Memory 为测试/本地实现。
package objectstore

import (
	"context"
	"io"
	"time"
)

// Store 是对象存储的统一契约。
//
// 约定：
//   - Put 按 key 覆盖写入（同 key 重写视为替换）。
//   - Delete 幂等：对象不存在时不返回错误。
//   - DeletePrefix 遍历完整列表（含分页），返回实际删除数量。
type Store interface {
	// Put 上传一个对象并设置 Content-Type。
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	// SignedReadURL 返回对象的限时只读访问 URL。
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Delete 删除单个对象；对象缺失不算错误。
	Delete(ctx context.Context, key string) error
	// DeletePrefix 删除前缀下的全部对象并返回删除数量。
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
