package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// PublishJob 是一次视频发布任务的全部输入。
// ScratchDir 为该任务独占的本地暂存目录，任务结束后整体删除。
type PublishJob struct {
	PropertyID       uuid.UUID
	SourcePath       string
	OriginalFileName string
	ScratchDir       string
}

// publishArtifacts 汇总发布成功后需要落库的对象键。
type publishArtifacts struct {
	masterKey    string
	thumbnailKey string
	qualityKeys  map[string]string
}

// PublishService 执行单个发布任务：规范化 → 阶梯编码 → 缩略图 → 上传 → 条件落库。
// 任何一步失败都会回滚本次已上传的对象并把槽位写成 failed。
type PublishService struct {
	repo       PropertyRepo
	store      objectstore.Store
	transcoder Transcoder
	log        *log.Helper
	now        func() time.Time
}

// NewPublishService 创建 PublishService。
func NewPublishService(repo PropertyRepo, store objectstore.Store, transcoder Transcoder, logger log.Logger) (*PublishService, error) {
	switch {
	case repo == nil:
		return nil, errors.New("publish service: repository is required")
	case store == nil:
		return nil, errors.New("publish service: object store is required")
	case transcoder == nil:
		return nil, errors.New("publish service: transcoder is required")
	}
	return &PublishService{
		repo:       repo,
		store:      store,
		transcoder: transcoder,
		log:        log.NewHelper(logger),
		now:        time.Now,
	}, nil
}

// Publish 端到端执行一个发布任务并把结果写回房源记录。
//
// 终态写入以 video_status='queued' 为条件：槽位被并发改写后，
// 迟到的结果只记一条冲突日志。暂存目录在成功与失败路径上都被清理。
func (s *PublishService) Publish(ctx context.Context, job PublishJob) error {
	started := s.now()
	defer s.cleanupScratch(ctx, job)

	artifacts, err := s.execute(ctx, job)
	if err != nil {
		s.log.WithContext(ctx).Errorf("video publish failed: property_id=%s elapsed=%s err=%v",
			job.PropertyID, time.Since(started).Round(time.Millisecond), err)
		if _, failErr := s.repo.FailVideoPublish(ctx, nil, job.PropertyID, truncateError(err)); failErr != nil {
			s.log.WithContext(ctx).Errorf("record publish failure failed: property_id=%s err=%v", job.PropertyID, failErr)
		}
		return err
	}

	applied, err := s.repo.CompleteVideoPublish(ctx, nil, job.PropertyID,
		artifacts.masterKey, artifacts.thumbnailKey, artifacts.qualityKeys)
	if err != nil {
		return fmt.Errorf("persist publish outcome: %w", err)
	}
	if applied {
		s.log.WithContext(ctx).Infof("video published: property_id=%s master=%s elapsed=%s",
			job.PropertyID, artifacts.masterKey, time.Since(started).Round(time.Millisecond))
	}
	return nil
}

// execute 跑完媒体与上传步骤，返回产物键；出错时内部已回滚上传。
func (s *PublishService) execute(ctx context.Context, job PublishJob) (publishArtifacts, error) {
	var none publishArtifacts

	// 1. 源文件必须仍然存在
	if _, err := os.Stat(job.SourcePath); err != nil {
		return none, fmt.Errorf("source file missing: %s: %w", job.SourcePath, err)
	}

	// 2. 探测（顺带校验存在视频流）
	info, err := s.transcoder.Probe(ctx, job.SourcePath)
	if err != nil {
		return none, fmt.Errorf("probe source: %w", err)
	}

	// 3. 非交付规格时先规范化为 H.264/AAC MP4
	input := job.SourcePath
	if !info.DeliveryReady() {
		normalized := filepath.Join(job.ScratchDir, "delivery.mp4")
		if err := s.transcoder.Normalize(ctx, job.SourcePath, normalized); err != nil {
			return none, fmt.Errorf("normalize source: %w", err)
		}
		input = normalized
	}

	// 4. 按片长选分片时长，单次编码产出整个阶梯
	segSeconds := ffmpeg.SegmentDuration(info.DurationSeconds)
	hlsDir := filepath.Join(job.ScratchDir, "hls")
	if err := os.MkdirAll(hlsDir, 0o755); err != nil {
		return none, fmt.Errorf("create hls dir: %w", err)
	}
	if err := s.transcoder.EncodeLadder(ctx, input, hlsDir, segSeconds, info.HasAudio); err != nil {
		return none, fmt.Errorf("encode ladder: %w", err)
	}

	// 5. 缩略图失败视为整个任务失败
	thumbPath := filepath.Join(job.ScratchDir, "cover.jpg")
	if err := s.transcoder.Thumbnail(ctx, input, thumbPath, info.DurationSeconds); err != nil {
		return none, fmt.Errorf("extract thumbnail: %w", err)
	}

	// 6. 上传产物目录 + 缩略图；失败时回滚本次所有已上传对象
	uploaded := make([]string, 0, 64)
	artifacts, err := s.uploadArtifacts(ctx, job, hlsDir, thumbPath, &uploaded)
	if err != nil {
		s.rollbackUploads(ctx, job.PropertyID, uploaded)
		return none, err
	}
	return artifacts, nil
}

// uploadArtifacts 把 HLS 目录与缩略图上传到房源的视频命名空间。
// 列目录与读文件之间消失的文件跳过并记日志，不拖垮整批。
func (s *PublishService) uploadArtifacts(ctx context.Context, job PublishJob, hlsDir, thumbPath string, uploaded *[]string) (publishArtifacts, error) {
	var none publishArtifacts

	entries, err := os.ReadDir(hlsDir)
	if err != nil {
		return none, fmt.Errorf("list hls dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		localPath := filepath.Join(hlsDir, entry.Name())
		key := objectstore.VideoObjectKey(job.PropertyID, entry.Name())
		if err := s.uploadFile(ctx, localPath, key); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.WithContext(ctx).Warnf("hls artifact vanished before upload, skipping: %s", localPath)
				continue
			}
			return none, fmt.Errorf("upload %s: %w", entry.Name(), err)
		}
		*uploaded = append(*uploaded, key)
	}

	thumbnailKey := objectstore.ThumbnailKey(job.PropertyID, "cover.jpg")
	if err := s.uploadFile(ctx, thumbPath, thumbnailKey); err != nil {
		return none, fmt.Errorf("upload thumbnail: %w", err)
	}
	*uploaded = append(*uploaded, thumbnailKey)

	// 每个必需对象确认写入后才算上传完成
	artifacts := publishArtifacts{
		masterKey:    objectstore.MasterPlaylistKey(job.PropertyID),
		thumbnailKey: thumbnailKey,
		qualityKeys:  make(map[string]string, len(ffmpeg.Qualities())),
	}
	required := map[string]struct{}{artifacts.masterKey: {}}
	for _, quality := range ffmpeg.Qualities() {
		key := objectstore.RenditionPlaylistKey(job.PropertyID, quality)
		artifacts.qualityKeys[quality] = key
		required[key] = struct{}{}
	}
	for _, key := range *uploaded {
		delete(required, key)
	}
	if len(required) > 0 {
		return none, fmt.Errorf("encode output incomplete: %d required manifests missing", len(required))
	}
	return artifacts, nil
}

func (s *PublishService) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.store.Put(ctx, key, objectstore.ContentTypeForFile(localPath), f)
}

// rollbackUploads 尽力删除本次任务已写入的对象；单个删除失败只记日志。
func (s *PublishService) rollbackUploads(ctx context.Context, propertyID uuid.UUID, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.WithContext(ctx).Errorf("rollback delete failed: property_id=%s key=%s err=%v", propertyID, key, err)
		}
	}
	if len(keys) > 0 {
		s.log.WithContext(ctx).Infof("rolled back %d uploaded objects: property_id=%s", len(keys), propertyID)
	}
}

// cleanupScratch 删除任务暂存目录；清理失败不影响任务结果。
func (s *PublishService) cleanupScratch(ctx context.Context, job PublishJob) {
	if job.ScratchDir == "" {
		return
	}
	if err := os.RemoveAll(job.ScratchDir); err != nil {
		s.log.WithContext(ctx).Warnf("scratch cleanup failed: dir=%s err=%v", job.ScratchDir, err)
	}
}

// truncateError 把错误信息压到可落库的长度。
// ffmpeg 的 stderr 会原样混进错误串，可能带非 UTF-8 字节；
// 先清洗再按 rune 边界截断，否则 Postgres 的 text 列会拒绝写入。
func truncateError(err error) string {
	const limit = 500
	msg := strings.ToValidUTF8(err.Error(), "�")
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
