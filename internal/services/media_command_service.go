package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/estate-services-listing/internal/models/vo"

	"github.com/bionicotaku/lingo-utils/txmanager"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// 错误原因常量（kerrors reason）
const (
	ReasonPropertyNotFound = "PROPERTY_NOT_FOUND"
	ReasonImageLimit       = "IMAGE_LIMIT_EXCEEDED"
	ReasonVideoLimit       = "VIDEO_LIMIT_EXCEEDED"
	ReasonVideoSlotState   = "VIDEO_SLOT_STATE"
	ReasonInvalidMedia     = "INVALID_MEDIA_REQUEST"
)

// VideoPublisher 抽象发布执行器，便于测试。
type VideoPublisher interface {
	Publish(ctx context.Context, job PublishJob) error
}

// StagedImage 是已写入本地暂存区、等待上对象存储的图片。
type StagedImage struct {
	LocalPath    string
	OriginalName string
}

// ReconcileImagesInput 描述一次图片调整请求。
// Replacements 的 key 为被替换的旧对象键。
type ReconcileImagesInput struct {
	PropertyID   uuid.UUID
	NewImages    []StagedImage
	Replacements map[string]StagedImage
	RemovedKeys  []string
}

// MediaCommandService 实现媒体写路径用例：视频上传/重传/移除与图片调整。
type MediaCommandService struct {
	repo      PropertyRepo
	store     objectstore.Store
	queue     JobQueue
	publisher VideoPublisher
	txManager txmanager.Manager
	maxImages int
	maxVideos int
	log       *log.Helper
	now       func() time.Time
}

// NewMediaCommandService 创建 MediaCommandService。
func NewMediaCommandService(
	repo PropertyRepo,
	store objectstore.Store,
	queue JobQueue,
	publisher VideoPublisher,
	txManager txmanager.Manager,
	maxImages int,
	maxVideos int,
	logger log.Logger,
) (*MediaCommandService, error) {
	switch {
	case repo == nil:
		return nil, errors.New("media command service: repository is required")
	case store == nil:
		return nil, errors.New("media command service: object store is required")
	case queue == nil:
		return nil, errors.New("media command service: job queue is required")
	case publisher == nil:
		return nil, errors.New("media command service: publisher is required")
	case txManager == nil:
		return nil, errors.New("media command service: tx manager is required")
	case maxImages <= 0:
		return nil, errors.New("media command service: max images must be positive")
	case maxVideos < 0:
		return nil, errors.New("media command service: max videos must not be negative")
	}
	return &MediaCommandService{
		repo:      repo,
		store:     store,
		queue:     queue,
		publisher: publisher,
		txManager: txManager,
		maxImages: maxImages,
		maxVideos: maxVideos,
		log:       log.NewHelper(logger),
		now:       time.Now,
	}, nil
}

// UploadVideo 受理一次视频上传：清掉旧视频对象集 → 槽位置 queued → 入队 → 立即返回。
// 视频替换刻意不做 new-before-old（转码太慢），接受失败窗口，由显式重传兜底。
func (s *MediaCommandService) UploadVideo(ctx context.Context, job PublishJob) (*vo.QueuedView, error) {
	if err := validatePublishJob(job); err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, kerrors.BadRequest(ReasonInvalidMedia, err.Error())
	}
	if _, err := s.repo.GetByID(ctx, nil, job.PropertyID); err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, s.mapRepoError(err)
	}
	return s.queueVideo(ctx, job)
}

// ReuploadVideo 针对 failed 槽位重跑发布；其它状态拒绝。
func (s *MediaCommandService) ReuploadVideo(ctx context.Context, job PublishJob) (*vo.QueuedView, error) {
	if err := validatePublishJob(job); err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, kerrors.BadRequest(ReasonInvalidMedia, err.Error())
	}
	property, err := s.repo.GetByID(ctx, nil, job.PropertyID)
	if err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, s.mapRepoError(err)
	}
	if property.VideoStatus != po.VideoStatusFailed {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, kerrors.Conflict(ReasonVideoSlotState,
			fmt.Sprintf("video slot is %s, reupload requires failed", property.VideoStatus))
	}
	return s.queueVideo(ctx, job)
}

// queueVideo 执行删旧→置队→入队的公共流程。
func (s *MediaCommandService) queueVideo(ctx context.Context, job PublishJob) (*vo.QueuedView, error) {
	// 限额检查先于任何写操作：单槽位策略下一次发布恰好占一个名额
	if s.maxVideos < 1 {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, kerrors.BadRequest(ReasonVideoLimit,
			fmt.Sprintf("video count 1 exceeds limit %d", s.maxVideos))
	}
	if _, err := s.store.DeletePrefix(ctx, objectstore.VideoPrefix(job.PropertyID)); err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, fmt.Errorf("teardown existing video objects: %w", err)
	}
	if err := s.repo.MarkVideoQueued(ctx, nil, job.PropertyID); err != nil {
		s.cleanupStaged(ctx, job.ScratchDir)
		return nil, s.mapRepoError(err)
	}

	s.queue.Enqueue(func(jobCtx context.Context) error {
		return s.publisher.Publish(jobCtx, job)
	})

	queuedAt := s.now()
	s.log.WithContext(ctx).Infof("video publish enqueued: property_id=%s source=%s",
		job.PropertyID, job.OriginalFileName)
	return &vo.QueuedView{
		PropertyID: job.PropertyID,
		Status:     string(po.VideoStatusQueued),
		QueuedAt:   queuedAt,
	}, nil
}

// RemoveVideo 移除房源视频：删除整个对象前缀并把槽位清回 none。
func (s *MediaCommandService) RemoveVideo(ctx context.Context, propertyID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, nil, propertyID); err != nil {
		return s.mapRepoError(err)
	}
	count, err := s.store.DeletePrefix(ctx, objectstore.VideoPrefix(propertyID))
	if err != nil {
		return fmt.Errorf("delete video objects: %w", err)
	}
	if err := s.repo.ClearVideoSlot(ctx, nil, propertyID); err != nil {
		return s.mapRepoError(err)
	}
	s.log.WithContext(ctx).Infof("video removed: property_id=%s objects_deleted=%d", propertyID, count)
	return nil
}

// ReconcileImages 执行图片调整：先传新、后删旧、最后一笔事务提交数组。
//
// 顺序保证：任何新对象上传失败时，旧对象与文档都未被动过；
// 提交前的任何异常都会回滚本次已上传的对象。
func (s *MediaCommandService) ReconcileImages(ctx context.Context, input ReconcileImagesInput) (*vo.MediaView, error) {
	defer s.cleanupStagedImages(ctx, input)

	property, err := s.repo.GetByID(ctx, nil, input.PropertyID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}

	existing := make(map[string]struct{}, len(property.ImageKeys))
	for _, key := range property.ImageKeys {
		existing[key] = struct{}{}
	}
	for oldKey := range input.Replacements {
		if _, ok := existing[oldKey]; !ok {
			return nil, kerrors.BadRequest(ReasonInvalidMedia, fmt.Sprintf("replacement target %s not on property", oldKey))
		}
	}
	for _, key := range input.RemovedKeys {
		if _, ok := existing[key]; !ok {
			return nil, kerrors.BadRequest(ReasonInvalidMedia, fmt.Sprintf("removal target %s not on property", key))
		}
	}

	// 限额检查先于任何写操作
	finalCount := len(property.ImageKeys) - len(input.RemovedKeys) + len(input.NewImages)
	if finalCount > s.maxImages {
		return nil, kerrors.BadRequest(ReasonImageLimit,
			fmt.Sprintf("image count %d exceeds limit %d", finalCount, s.maxImages))
	}

	uploaded := make([]string, 0, len(input.Replacements)+len(input.NewImages))
	rollback := func() {
		for _, key := range uploaded {
			if err := s.store.Delete(ctx, key); err != nil {
				s.log.WithContext(ctx).Errorf("image rollback delete failed: key=%s err=%v", key, err)
			}
		}
	}

	// 1–2. 替换与净新增都先上传到新键
	timestamp := s.now().UnixMilli()
	seq := 0
	replacementKeys := make(map[string]string, len(input.Replacements))
	for oldKey, img := range input.Replacements {
		newKey := objectstore.ImageKey(input.PropertyID, timestamp+int64(seq), img.OriginalName)
		seq++
		if err := s.uploadStaged(ctx, img, newKey); err != nil {
			rollback()
			return nil, fmt.Errorf("upload replacement image %s: %w", img.OriginalName, err)
		}
		uploaded = append(uploaded, newKey)
		replacementKeys[oldKey] = newKey
	}
	newKeys := make([]string, 0, len(input.NewImages))
	for _, img := range input.NewImages {
		key := objectstore.ImageKey(input.PropertyID, timestamp+int64(seq), img.OriginalName)
		seq++
		if err := s.uploadStaged(ctx, img, key); err != nil {
			rollback()
			return nil, fmt.Errorf("upload image %s: %w", img.OriginalName, err)
		}
		uploaded = append(uploaded, key)
		newKeys = append(newKeys, key)
	}

	// 3. 所有上传成功后才删除被移除与被替换的旧对象
	for _, key := range input.RemovedKeys {
		if err := s.store.Delete(ctx, key); err != nil {
			rollback()
			return nil, fmt.Errorf("delete removed image %s: %w", key, err)
		}
	}
	for oldKey := range input.Replacements {
		if err := s.store.Delete(ctx, oldKey); err != nil {
			rollback()
			return nil, fmt.Errorf("delete replaced image %s: %w", oldKey, err)
		}
	}

	// 4. 提交数组：保留原顺序，替换项原位换键，净新增追加在末尾
	removed := make(map[string]struct{}, len(input.RemovedKeys))
	for _, key := range input.RemovedKeys {
		removed[key] = struct{}{}
	}
	finalKeys := make([]string, 0, finalCount)
	for _, key := range property.ImageKeys {
		if _, drop := removed[key]; drop {
			continue
		}
		if newKey, replaced := replacementKeys[key]; replaced {
			finalKeys = append(finalKeys, newKey)
			continue
		}
		finalKeys = append(finalKeys, key)
	}
	finalKeys = append(finalKeys, newKeys...)

	err = s.txManager.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
		return s.repo.UpdateImageKeys(txCtx, sess, input.PropertyID, finalKeys)
	})
	if err != nil {
		rollback()
		return nil, s.mapRepoError(err)
	}

	s.log.WithContext(ctx).Infof("images reconciled: property_id=%s total=%d uploaded=%d removed=%d",
		input.PropertyID, len(finalKeys), len(uploaded), len(input.RemovedKeys)+len(input.Replacements))
	return &vo.MediaView{
		PropertyID:  input.PropertyID,
		ImageKeys:   finalKeys,
		VideoStatus: string(property.VideoStatus),
		UpdatedAt:   s.now(),
	}, nil
}

func (s *MediaCommandService) uploadStaged(ctx context.Context, img StagedImage, key string) error {
	f, err := os.Open(img.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.store.Put(ctx, key, objectstore.ContentTypeForFile(img.OriginalName), f)
}

// cleanupStaged 删除视频任务暂存目录（仅在受理失败时调用；受理成功后归 worker 清理）。
func (s *MediaCommandService) cleanupStaged(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.log.WithContext(ctx).Warnf("staged cleanup failed: dir=%s err=%v", dir, err)
	}
}

// cleanupStagedImages 无论成败都删除本次请求暂存的图片文件。
func (s *MediaCommandService) cleanupStagedImages(ctx context.Context, input ReconcileImagesInput) {
	remove := func(img StagedImage) {
		if img.LocalPath == "" {
			return
		}
		if err := os.Remove(img.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.WithContext(ctx).Warnf("staged image cleanup failed: path=%s err=%v", img.LocalPath, err)
		}
	}
	for _, img := range input.NewImages {
		remove(img)
	}
	for _, img := range input.Replacements {
		remove(img)
	}
}

func (s *MediaCommandService) mapRepoError(err error) error {
	if errors.Is(err, ErrPropertyNotFound) {
		return kerrors.NotFound(ReasonPropertyNotFound, "property not found")
	}
	return err
}

func validatePublishJob(job PublishJob) error {
	switch {
	case job.PropertyID == uuid.Nil:
		return errors.New("property id is required")
	case job.SourcePath == "":
		return errors.New("source path is required")
	case job.ScratchDir == "":
		return errors.New("scratch dir is required")
	}
	return nil
}
