package publish

import (
	"context"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/bionicotaku/estate-services-listing/internal/services"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露队列构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	ProvideQueue,
	ProvideJobQueue,
)

// ProvideQueue 按流水线配置装配发布队列。
func ProvideQueue(pipeline configloader.PipelineConfig, logger log.Logger) (*Queue, error) {
	return NewQueue(pipeline.Concurrency, logger)
}

// serviceQueue 把 *Handle 适配成服务层的 Future 契约。
type serviceQueue struct {
	q *Queue
}

func (a serviceQueue) Enqueue(fn func(context.Context) error) services.Future {
	return a.q.Enqueue(fn)
}

// ProvideJobQueue 以 services.JobQueue 形式暴露队列。
func ProvideJobQueue(q *Queue) services.JobQueue {
	if q == nil {
		return nil
	}
	return serviceQueue{q: q}
}
