// Package vo 定义视图对象（View Objects），用于向上层传递业务数据。
// VO 对象由 Service 层返回，经 Controller 层转换为 API 响应，隔离内部数据结构。
package vo

import (
	"time"

	"github.com/google/uuid"
)

// VideoSlotView 封装视频槽位状态与播放地址，用于视频查询响应。
// URL 字段为签名只读地址，仅在 status=completed 时填充。
type VideoSlotView struct {
	PropertyID uuid.UUID `json:"property_id"`
	Status     string    `json:"status"`

	// 播放相关（签名 URL，限时有效）
	MasterURL    *string           `json:"master_url,omitempty"`
	ThumbnailURL *string           `json:"thumbnail_url,omitempty"`
	QualityURLs  map[string]string `json:"quality_urls,omitempty"`

	// 失败信息
	ErrorMessage *string `json:"error_message,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MediaView 封装房源媒体概览，用于图片调整响应。
type MediaView struct {
	PropertyID  uuid.UUID `json:"property_id"`
	ImageKeys   []string  `json:"image_keys"`
	VideoStatus string    `json:"video_status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueuedView 表示上传受理结果：202 响应体。
type QueuedView struct {
	PropertyID uuid.UUID `json:"property_id"`
	Status     string    `json:"status"`
	QueuedAt   time.Time `json:"queued_at"`
}
