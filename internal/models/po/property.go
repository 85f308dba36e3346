// Package po 定义面向持久化的数据对象（Persistent Objects），由 Repository 层使用。
// PO 对象映射数据库表结构，不直接暴露给上层业务逻辑。
package po

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus 表示房源视频槽位的生命周期状态
type VideoStatus string

// 视频槽位状态常量定义
const (
	VideoStatusNone      VideoStatus = "none"      // 无视频
	VideoStatusQueued    VideoStatus = "queued"    // 已入队待发布
	VideoStatusCompleted VideoStatus = "completed" // 发布完成，产物键齐备
	VideoStatusFailed    VideoStatus = "failed"    // 发布失败，错误信息可读
)

// Property 表示 listings.properties 表的数据库实体。
// 视频槽位字段与状态机：queued →（worker 终态写入）→ completed | failed。
//
// 不变量：masterKey/thumbnailKey/qualityKeys 齐备 当且仅当 status=completed；
// errorMessage 仅在 status=failed 时有值。
type Property struct {
	PropertyID uuid.UUID `db:"property_id"` // 主键（UUID v4）
	Title      string    `db:"title"`       // 房源标题
	CreatedAt  time.Time `db:"created_at"`  // 记录创建时间
	UpdatedAt  time.Time `db:"updated_at"`  // 最近更新时间（触发器自动维护）

	// 图片：对象键数组，顺序即展示顺序（PostgreSQL text[]）
	ImageKeys []string `db:"image_keys"`

	// 视频槽位（单槽位策略：每个房源至多一个视频）
	VideoStatus       VideoStatus       `db:"video_status"`        // 槽位状态
	VideoMasterKey    *string           `db:"video_master_key"`    // 主清单对象键
	VideoThumbnailKey *string           `db:"video_thumbnail_key"` // 缩略图对象键
	VideoQualityKeys  map[string]string `db:"video_quality_keys"`  // 清晰度→子清单键（jsonb）
	VideoError        *string           `db:"video_error"`         // 最近一次失败原因
	VideoQueuedAt     *time.Time        `db:"video_queued_at"`     // 最近一次入队时间（启动清扫用）
}

// HasVideo 报告槽位是否有已完成发布的视频。
func (p *Property) HasVideo() bool {
	return p != nil && p.VideoStatus == VideoStatusCompleted
}
