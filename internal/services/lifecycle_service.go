package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// staleQueuedReason 是清扫写入 video_error 的固定文案。
const staleQueuedReason = "publish worker lost before completion (process restarted while job was queued)"

// LifecycleService 负责视频槽位的存活性维护。
// 进程被直接杀死时 queued 槽位没有任何人写终态，启动清扫是唯一的修复路径。
type LifecycleService struct {
	repo       PropertyRepo
	staleAfter time.Duration
	log        *log.Helper
	now        func() time.Time
}

// NewLifecycleService 创建 LifecycleService。
func NewLifecycleService(repo PropertyRepo, staleAfter time.Duration, logger log.Logger) (*LifecycleService, error) {
	switch {
	case repo == nil:
		return nil, errors.New("lifecycle service: repository is required")
	case staleAfter <= 0:
		return nil, errors.New("lifecycle service: stale threshold must be positive")
	}
	return &LifecycleService{
		repo:       repo,
		staleAfter: staleAfter,
		log:        log.NewHelper(logger),
		now:        time.Now,
	}, nil
}

// SweepStale 把入队超过阈值仍未落终态的槽位统一置为 failed。
func (s *LifecycleService) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	count, err := s.repo.SweepStaleQueued(ctx, nil, cutoff, staleQueuedReason)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.WithContext(ctx).Warnf("swept stale queued video slots: count=%d cutoff=%s", count, cutoff.Format(time.RFC3339))
	}
	return count, nil
}
