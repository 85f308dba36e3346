// Package services 实现业务用例层：视频发布流水线、媒体调整与槽位生命周期。
// 依赖以接口形式声明，由 Wire 注入具体实现。
package services

import (
	"context"
	"errors"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/uuid"
)

// 仓储层哨兵错误
var (
	// ErrPropertyNotFound 表示目标房源不存在。
	ErrPropertyNotFound = errors.New("property not found")
)

// PropertyRepo 定义房源媒体字段的数据访问契约。
// sess 为 nil 时走连接池，非 nil 时复用事务。
type PropertyRepo interface {
	// GetByID 读取房源记录；不存在返回 ErrPropertyNotFound。
	GetByID(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) (*po.Property, error)
	// MarkVideoQueued 原子地把视频槽位置为 queued 并清空产物键与错误信息。
	MarkVideoQueued(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) error
	// CompleteVideoPublish 条件写入发布成功终态（仅当槽位仍为 queued）。
	// 返回是否实际生效；未生效说明槽位状态已被他人改写。
	CompleteVideoPublish(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, masterKey, thumbnailKey string, qualityKeys map[string]string) (bool, error)
	// FailVideoPublish 条件写入发布失败终态（仅当槽位仍为 queued）。
	FailVideoPublish(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, errorMessage string) (bool, error)
	// ClearVideoSlot 把槽位恢复为 none 并清空全部视频字段（移除/替换用）。
	ClearVideoSlot(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) error
	// UpdateImageKeys 整体提交图片键数组。
	UpdateImageKeys(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, imageKeys []string) error
	// SweepStaleQueued 把入队时间早于 cutoff 的 queued 槽位置为 failed，返回影响行数。
	SweepStaleQueued(ctx context.Context, sess txmanager.Session, cutoff time.Time, reason string) (int, error)
}

// Transcoder 定义发布流水线需要的媒体处理能力。
type Transcoder interface {
	Probe(ctx context.Context, path string) (ffmpeg.MediaInfo, error)
	Normalize(ctx context.Context, src, dst string) error
	EncodeLadder(ctx context.Context, src, outDir string, segSeconds int, hasAudio bool) error
	Thumbnail(ctx context.Context, src, dst string, durationSeconds float64) error
}

// Future 表示一个已提交任务的完成信号。
type Future interface {
	// Wait 阻塞到任务结束或 ctx 取消；返回任务错误。
	Wait(ctx context.Context) error
	// Done 在任务结束后关闭。
	Done() <-chan struct{}
}

// JobQueue 定义发布任务队列的提交契约。
type JobQueue interface {
	// Enqueue 提交一个延迟任务并立即返回其 Future。
	Enqueue(fn func(context.Context) error) Future
}
