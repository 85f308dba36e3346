package objectstore

import (
	"context"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露对象存储构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	ProvideStore,
)

// ProvideStore 构建生产用的 Store：GCS 外加签名 URL 缓存层。
func ProvideStore(ctx context.Context, cfg configloader.StorageConfig, logger log.Logger) (Store, func(), error) {
	gcs, gcsCleanup, err := NewGCS(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	caching, cacheCleanup := NewCachingStore(gcs, cfg.CacheSweepInterval, logger)
	cleanup := func() {
		cacheCleanup()
		gcsCleanup()
	}
	return caching, cleanup, nil
}
