package objectstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// 对象键布局：
//
//	properties/{id}/videos/master.m3u8
//	properties/{id}/videos/{quality}.m3u8
//	properties/{id}/videos/{quality}_{seq}.ts
//	properties/{id}/videos/thumbnails/{name}
//	properties/{id}/images/{timestamp}-{originalName}
//
// videos/ 前缀覆盖清单、分片与缩略图，整套视频可按前缀一次性删除。

// VideoPrefix 返回某个房源视频命名空间的前缀（含尾部斜杠）。
func VideoPrefix(propertyID uuid.UUID) string {
	return fmt.Sprintf("properties/%s/videos/", propertyID)
}

// MasterPlaylistKey 返回主清单的对象键。
func MasterPlaylistKey(propertyID uuid.UUID) string {
	return VideoPrefix(propertyID) + "master.m3u8"
}

// RenditionPlaylistKey 返回某档清晰度播放列表的对象键。
func RenditionPlaylistKey(propertyID uuid.UUID, quality string) string {
	return VideoPrefix(propertyID) + quality + ".m3u8"
}

// ThumbnailKey 返回缩略图的对象键。
func ThumbnailKey(propertyID uuid.UUID, filename string) string {
	return VideoPrefix(propertyID) + "thumbnails/" + filename
}

// ImageKey 返回图片的对象键；timestamp 前缀保证同名文件不互相覆盖。
func ImageKey(propertyID uuid.UUID, timestamp int64, originalName string) string {
	return fmt.Sprintf("properties/%s/images/%d-%s", propertyID, timestamp, sanitizeFilename(originalName))
}

// VideoObjectKey 将转码产物目录中的相对路径映射为对象键。
// 产物目录里是 master.m3u8、{quality}.m3u8 与 {quality}_{seq}.ts 的平铺布局。
func VideoObjectKey(propertyID uuid.UUID, relPath string) string {
	return VideoPrefix(propertyID) + path.Clean(relPath)
}

// ContentTypeForFile 根据扩展名推断上传 Content-Type。
func ContentTypeForFile(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// sanitizeFilename 去掉路径分隔符与空白，避免用户文件名污染键空间。
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
