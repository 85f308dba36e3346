// Package repositories 提供数据访问层实现，负责与持久化存储交互。
// 该层实现 Service 层定义的 Repository 接口，隔离底层存储细节。
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/estate-services-listing/internal/services"
	"github.com/bionicotaku/lingo-utils/txmanager"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier 抽象连接池与事务的共同查询面。
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// propertyRepo 是 services.PropertyRepo 接口的实现。
// 使用 pgxpool.Pool 进行数据库访问，事务内复用 txmanager.Session。
type propertyRepo struct {
	pool *pgxpool.Pool
	log  *log.Helper
}

// NewPropertyRepo 构造 PropertyRepo 接口的实现实例。
func NewPropertyRepo(pool *pgxpool.Pool, logger log.Logger) services.PropertyRepo {
	return &propertyRepo{
		pool: pool,
		log:  log.NewHelper(logger),
	}
}

// q 返回本次调用使用的执行器：事务优先，否则连接池。
func (r *propertyRepo) q(sess txmanager.Session) querier {
	if sess != nil {
		return sess.Tx()
	}
	return r.pool
}

// GetByID 根据 property_id 查询房源记录。
// 查询不到时返回 ErrPropertyNotFound。
func (r *propertyRepo) GetByID(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) (*po.Property, error) {
	query := `
		SELECT
			property_id, title, created_at, updated_at,
			image_keys,
			video_status, video_master_key, video_thumbnail_key,
			video_quality_keys, video_error, video_queued_at
		FROM listings.properties
		WHERE property_id = $1
	`

	p := &po.Property{}
	err := r.q(sess).QueryRow(ctx, query, propertyID).Scan(
		&p.PropertyID,
		&p.Title,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ImageKeys,
		&p.VideoStatus,
		&p.VideoMasterKey,
		&p.VideoThumbnailKey,
		&p.VideoQualityKeys,
		&p.VideoError,
		&p.VideoQueuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, services.ErrPropertyNotFound
		}
		r.log.WithContext(ctx).Errorf("get property failed: property_id=%s err=%v", propertyID, err)
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

// MarkVideoQueued 原子地把视频槽位置为 queued。
// 同时清空上一轮发布留下的产物键与错误信息，记录入队时间。
func (r *propertyRepo) MarkVideoQueued(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) error {
	query := `
		UPDATE listings.properties
		SET
			video_status = $2,
			video_master_key = NULL,
			video_thumbnail_key = NULL,
			video_quality_keys = NULL,
			video_error = NULL,
			video_queued_at = now(),
			updated_at = now()
		WHERE property_id = $1
	`

	tag, err := r.q(sess).Exec(ctx, query, propertyID, po.VideoStatusQueued)
	if err != nil {
		r.log.WithContext(ctx).Errorf("mark video queued failed: property_id=%s err=%v", propertyID, err)
		return fmt.Errorf("mark video queued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return services.ErrPropertyNotFound
	}
	r.log.WithContext(ctx).Infof("video slot queued: property_id=%s", propertyID)
	return nil
}

// CompleteVideoPublish 条件写入发布成功终态。
// WHERE video_status='queued' 是重入保护：槽位被并发改写（重新入队、
// 移除、清扫）后，迟到的成功结果被丢弃而不是覆盖新状态。
func (r *propertyRepo) CompleteVideoPublish(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, masterKey, thumbnailKey string, qualityKeys map[string]string) (bool, error) {
	query := `
		UPDATE listings.properties
		SET
			video_status = $2,
			video_master_key = $3,
			video_thumbnail_key = $4,
			video_quality_keys = $5,
			video_error = NULL,
			updated_at = now()
		WHERE property_id = $1 AND video_status = $6
	`

	tag, err := r.q(sess).Exec(ctx, query,
		propertyID,
		po.VideoStatusCompleted,
		masterKey,
		thumbnailKey,
		qualityKeys,
		po.VideoStatusQueued,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("complete video publish failed: property_id=%s err=%v", propertyID, err)
		return false, fmt.Errorf("complete video publish: %w", err)
	}
	applied := tag.RowsAffected() > 0
	if !applied {
		r.log.WithContext(ctx).Warnf("video publish outcome discarded, slot no longer queued: property_id=%s", propertyID)
	}
	return applied, nil
}

// FailVideoPublish 条件写入发布失败终态，条件语义同 CompleteVideoPublish。
func (r *propertyRepo) FailVideoPublish(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, errorMessage string) (bool, error) {
	query := `
		UPDATE listings.properties
		SET
			video_status = $2,
			video_master_key = NULL,
			video_thumbnail_key = NULL,
			video_quality_keys = NULL,
			video_error = $3,
			updated_at = now()
		WHERE property_id = $1 AND video_status = $4
	`

	tag, err := r.q(sess).Exec(ctx, query,
		propertyID,
		po.VideoStatusFailed,
		errorMessage,
		po.VideoStatusQueued,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("fail video publish failed: property_id=%s err=%v", propertyID, err)
		return false, fmt.Errorf("fail video publish: %w", err)
	}
	applied := tag.RowsAffected() > 0
	if !applied {
		r.log.WithContext(ctx).Warnf("video failure outcome discarded, slot no longer queued: property_id=%s", propertyID)
	}
	return applied, nil
}

// ClearVideoSlot 把槽位恢复为 none 并清空全部视频字段。
func (r *propertyRepo) ClearVideoSlot(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID) error {
	query := `
		UPDATE listings.properties
		SET
			video_status = $2,
			video_master_key = NULL,
			video_thumbnail_key = NULL,
			video_quality_keys = NULL,
			video_error = NULL,
			video_queued_at = NULL,
			updated_at = now()
		WHERE property_id = $1
	`

	tag, err := r.q(sess).Exec(ctx, query, propertyID, po.VideoStatusNone)
	if err != nil {
		r.log.WithContext(ctx).Errorf("clear video slot failed: property_id=%s err=%v", propertyID, err)
		return fmt.Errorf("clear video slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return services.ErrPropertyNotFound
	}
	return nil
}

// UpdateImageKeys 整体提交图片键数组（PostgreSQL text[]）。
func (r *propertyRepo) UpdateImageKeys(ctx context.Context, sess txmanager.Session, propertyID uuid.UUID, imageKeys []string) error {
	query := `
		UPDATE listings.properties
		SET image_keys = $2, updated_at = now()
		WHERE property_id = $1
	`

	tag, err := r.q(sess).Exec(ctx, query, propertyID, imageKeys)
	if err != nil {
		r.log.WithContext(ctx).Errorf("update image keys failed: property_id=%s err=%v", propertyID, err)
		return fmt.Errorf("update image keys: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return services.ErrPropertyNotFound
	}
	return nil
}

// SweepStaleQueued 把入队时间早于 cutoff 的 queued 槽位置为 failed。
// 进程被直接杀死会让槽位永远停在 queued，启动时靠这条更新兜底。
func (r *propertyRepo) SweepStaleQueued(ctx context.Context, sess txmanager.Session, cutoff time.Time, reason string) (int, error) {
	query := `
		UPDATE listings.properties
		SET
			video_status = $2,
			video_error = $3,
			updated_at = now()
		WHERE video_status = $4 AND video_queued_at < $1
	`

	tag, err := r.q(sess).Exec(ctx, query,
		cutoff,
		po.VideoStatusFailed,
		reason,
		po.VideoStatusQueued,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("sweep stale queued failed: err=%v", err)
		return 0, fmt.Errorf("sweep stale queued: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
