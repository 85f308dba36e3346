// Package lifecycle 承载启动期的槽位清扫任务。
package lifecycle

import (
	"context"
	"fmt"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/bionicotaku/estate-services-listing/internal/services"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露清扫 Runner 构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(ProvideRunner)

// Runner 在应用启动时执行一次 stale-queued 清扫。
// 实现 kratos transport.Server，随应用生命周期注册。
type Runner struct {
	svc     *services.LifecycleService
	enabled bool
	log     *log.Helper
}

// NewRunner 构造清扫 Runner。
func NewRunner(svc *services.LifecycleService, enabled bool, logger log.Logger) (*Runner, error) {
	if svc == nil {
		return nil, fmt.Errorf("lifecycle: service is required")
	}
	return &Runner{
		svc:     svc,
		enabled: enabled,
		log:     log.NewHelper(logger),
	}, nil
}

// Start 执行一次清扫；清扫失败只记日志，不阻止应用启动。
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || !r.enabled {
		return nil
	}
	count, err := r.svc.SweepStale(ctx)
	if err != nil {
		r.log.WithContext(ctx).Errorf("startup sweep failed: %v", err)
		return nil
	}
	r.log.WithContext(ctx).Infof("startup sweep finished: repaired=%d", count)
	return nil
}

// Stop 无事可做。
func (r *Runner) Stop(context.Context) error {
	return nil
}

// ProvideRunner 装配清扫 Runner。
func ProvideRunner(svc *services.LifecycleService, pipeline configloader.PipelineConfig, logger log.Logger) (*Runner, error) {
	return NewRunner(svc, pipeline.SweepOnStart, logger)
}
