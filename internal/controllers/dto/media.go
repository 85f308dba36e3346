// Package dto 提供控制器层的请求解析与响应构造工具。
// 单独的 dto 层可以隔离 HTTP 协议细节与业务用例之间的转换逻辑。
package dto

import (
	"github.com/bionicotaku/estate-services-listing/internal/models/vo"
)

// QueuedResponse 是视频上传受理成功的响应体。
type QueuedResponse struct {
	PropertyID     string `json:"property_id"`
	Status         string `json:"status"`
	QueuedAtUnixms int64  `json:"queued_at_unixms"`
}

// FromQueuedView 将受理结果映射为响应体。
func FromQueuedView(view *vo.QueuedView) *QueuedResponse {
	if view == nil {
		return nil
	}
	return &QueuedResponse{
		PropertyID:     view.PropertyID.String(),
		Status:         view.Status,
		QueuedAtUnixms: view.QueuedAt.UTC().UnixMilli(),
	}
}

// VideoSlotResponse 是视频槽位查询的响应体。
// 播放地址仅在 status=completed 时出现，且为限时签名 URL。
type VideoSlotResponse struct {
	PropertyID      string            `json:"property_id"`
	Status          string            `json:"status"`
	MasterURL       *string           `json:"master_url,omitempty"`
	ThumbnailURL    *string           `json:"thumbnail_url,omitempty"`
	QualityURLs     map[string]string `json:"quality_urls,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	UpdatedAtUnixms int64             `json:"updated_at_unixms"`
}

// FromVideoSlotView 将槽位视图映射为响应体。
func FromVideoSlotView(view *vo.VideoSlotView) *VideoSlotResponse {
	if view == nil {
		return nil
	}
	return &VideoSlotResponse{
		PropertyID:      view.PropertyID.String(),
		Status:          view.Status,
		MasterURL:       view.MasterURL,
		ThumbnailURL:    view.ThumbnailURL,
		QualityURLs:     view.QualityURLs,
		ErrorMessage:    view.ErrorMessage,
		UpdatedAtUnixms: view.UpdatedAt.UTC().UnixMilli(),
	}
}

// MediaResponse 是图片调整成功后的媒体清单响应体。
type MediaResponse struct {
	PropertyID      string   `json:"property_id"`
	ImageKeys       []string `json:"image_keys"`
	VideoStatus     string   `json:"video_status"`
	UpdatedAtUnixms int64    `json:"updated_at_unixms"`
}

// FromMediaView 将媒体视图映射为响应体。
func FromMediaView(view *vo.MediaView) *MediaResponse {
	if view == nil {
		return nil
	}
	return &MediaResponse{
		PropertyID:      view.PropertyID.String(),
		ImageKeys:       view.ImageKeys,
		VideoStatus:     view.VideoStatus,
		UpdatedAtUnixms: view.UpdatedAt.UTC().UnixMilli(),
	}
}
