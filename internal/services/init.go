package services

import (
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露服务层构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	ProvidePublishService,
	ProvideMediaCommandService,
	ProvideMediaQueryService,
	ProvideLifecycleService,
)

// ProvidePublishService 绑定具体转码器并构建 PublishService。
func ProvidePublishService(repo PropertyRepo, store objectstore.Store, transcoder *ffmpeg.Transcoder, logger log.Logger) (*PublishService, error) {
	return NewPublishService(repo, store, transcoder, logger)
}

// ProvideMediaCommandService 从流水线配置取限额并构建 MediaCommandService。
func ProvideMediaCommandService(
	repo PropertyRepo,
	store objectstore.Store,
	queue JobQueue,
	publisher *PublishService,
	txManager txmanager.Manager,
	pipeline configloader.PipelineConfig,
	logger log.Logger,
) (*MediaCommandService, error) {
	return NewMediaCommandService(repo, store, queue, publisher, txManager, pipeline.MaxImages, pipeline.MaxVideos, logger)
}

// ProvideMediaQueryService 从存储配置取签名 TTL 并构建 MediaQueryService。
func ProvideMediaQueryService(
	repo PropertyRepo,
	store objectstore.Store,
	txManager txmanager.Manager,
	storage configloader.StorageConfig,
	logger log.Logger,
) (*MediaQueryService, error) {
	return NewMediaQueryService(repo, store, txManager, storage.SignedURLTTL, logger)
}

// ProvideLifecycleService 从流水线配置取清扫阈值并构建 LifecycleService。
func ProvideLifecycleService(repo PropertyRepo, pipeline configloader.PipelineConfig, logger log.Logger) (*LifecycleService, error) {
	return NewLifecycleService(repo, pipeline.StaleAfter, logger)
}
