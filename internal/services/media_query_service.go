package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/estate-services-listing/internal/models/vo"

	"github.com/bionicotaku/lingo-utils/txmanager"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// MediaQueryService 实现媒体读路径用例：槽位状态与签名播放地址。
type MediaQueryService struct {
	repo      PropertyRepo
	store     objectstore.Store
	txManager txmanager.Manager
	signedTTL time.Duration
	log       *log.Helper
}

// NewMediaQueryService 创建 MediaQueryService。
func NewMediaQueryService(repo PropertyRepo, store objectstore.Store, txManager txmanager.Manager, signedTTL time.Duration, logger log.Logger) (*MediaQueryService, error) {
	switch {
	case repo == nil:
		return nil, errors.New("media query service: repository is required")
	case store == nil:
		return nil, errors.New("media query service: object store is required")
	case txManager == nil:
		return nil, errors.New("media query service: tx manager is required")
	case signedTTL <= 0:
		return nil, errors.New("media query service: signed ttl must be positive")
	}
	return &MediaQueryService{
		repo:      repo,
		store:     store,
		txManager: txManager,
		signedTTL: signedTTL,
		log:       log.NewHelper(logger),
	}, nil
}

// GetVideoSlot 返回槽位状态；completed 时附带限时签名播放地址。
func (s *MediaQueryService) GetVideoSlot(ctx context.Context, propertyID uuid.UUID) (*vo.VideoSlotView, error) {
	var property *po.Property
	err := s.txManager.WithinReadOnlyTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
		p, err := s.repo.GetByID(txCtx, sess, propertyID)
		if err != nil {
			return err
		}
		property = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return nil, kerrors.NotFound(ReasonPropertyNotFound, "property not found")
		}
		return nil, err
	}

	view := &vo.VideoSlotView{
		PropertyID:   property.PropertyID,
		Status:       string(property.VideoStatus),
		ErrorMessage: property.VideoError,
		UpdatedAt:    property.UpdatedAt,
	}
	if !property.HasVideo() {
		return view, nil
	}

	if property.VideoMasterKey != nil {
		url, err := s.store.SignedReadURL(ctx, *property.VideoMasterKey, s.signedTTL)
		if err != nil {
			return nil, fmt.Errorf("sign master playlist: %w", err)
		}
		view.MasterURL = &url
	}
	if property.VideoThumbnailKey != nil {
		url, err := s.store.SignedReadURL(ctx, *property.VideoThumbnailKey, s.signedTTL)
		if err != nil {
			return nil, fmt.Errorf("sign thumbnail: %w", err)
		}
		view.ThumbnailURL = &url
	}
	if len(property.VideoQualityKeys) > 0 {
		view.QualityURLs = make(map[string]string, len(property.VideoQualityKeys))
		for quality, key := range property.VideoQualityKeys {
			url, err := s.store.SignedReadURL(ctx, key, s.signedTTL)
			if err != nil {
				return nil, fmt.Errorf("sign %s playlist: %w", quality, err)
			}
			view.QualityURLs[quality] = url
		}
	}
	return view, nil
}
