package services_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/estate-services-listing/internal/services"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

func newQueryService(t *testing.T, repo services.PropertyRepo, store objectstore.Store) *services.MediaQueryService {
	t.Helper()
	svc, err := services.NewMediaQueryService(repo, store, noopTxManager{}, 15*time.Minute, log.NewStdLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewMediaQueryService: %v", err)
	}
	return svc
}

func strPtr(s string) *string { return &s }

func TestGetVideoSlot_NotFound(t *testing.T) {
	svc := newQueryService(t, &propertyRepoStub{}, objectstore.NewMemory())

	_, err := svc.GetVideoSlot(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if ke := kerrors.FromError(err); ke.Code != 404 {
		t.Errorf("code = %d, want 404", ke.Code)
	}
}

func TestGetVideoSlot_QueuedHasNoURLs(t *testing.T) {
	property := existingProperty(nil, po.VideoStatusQueued)
	svc := newQueryService(t, &propertyRepoStub{property: property}, objectstore.NewMemory())

	view, err := svc.GetVideoSlot(context.Background(), property.PropertyID)
	if err != nil {
		t.Fatalf("GetVideoSlot: %v", err)
	}
	if view.Status != string(po.VideoStatusQueued) {
		t.Errorf("status = %s", view.Status)
	}
	if view.MasterURL != nil || view.ThumbnailURL != nil || len(view.QualityURLs) != 0 {
		t.Error("non-completed slot must not expose playback URLs")
	}
}

func TestGetVideoSlot_FailedExposesError(t *testing.T) {
	property := existingProperty(nil, po.VideoStatusFailed)
	property.VideoError = strPtr("encode ladder: exit status 1")
	svc := newQueryService(t, &propertyRepoStub{property: property}, objectstore.NewMemory())

	view, err := svc.GetVideoSlot(context.Background(), property.PropertyID)
	if err != nil {
		t.Fatalf("GetVideoSlot: %v", err)
	}
	if view.ErrorMessage == nil || *view.ErrorMessage == "" {
		t.Error("failed slot should expose the error message")
	}
	if view.MasterURL != nil {
		t.Error("failed slot must not expose playback URLs")
	}
}

func TestGetVideoSlot_CompletedSignsAllURLs(t *testing.T) {
	property := existingProperty(nil, po.VideoStatusCompleted)
	id := property.PropertyID
	masterKey := objectstore.MasterPlaylistKey(id)
	thumbKey := objectstore.ThumbnailKey(id, "cover.jpg")
	property.VideoMasterKey = strPtr(masterKey)
	property.VideoThumbnailKey = strPtr(thumbKey)
	property.VideoQualityKeys = map[string]string{
		"1080p": objectstore.RenditionPlaylistKey(id, "1080p"),
		"720p":  objectstore.RenditionPlaylistKey(id, "720p"),
		"480p":  objectstore.RenditionPlaylistKey(id, "480p"),
	}

	store := objectstore.NewMemory()
	seedObject(t, store, masterKey)
	seedObject(t, store, thumbKey)
	for _, key := range property.VideoQualityKeys {
		seedObject(t, store, key)
	}

	svc := newQueryService(t, &propertyRepoStub{property: property}, store)

	view, err := svc.GetVideoSlot(context.Background(), id)
	if err != nil {
		t.Fatalf("GetVideoSlot: %v", err)
	}
	if view.MasterURL == nil || !strings.Contains(*view.MasterURL, masterKey) {
		t.Errorf("master url = %v", view.MasterURL)
	}
	if view.ThumbnailURL == nil {
		t.Error("thumbnail url missing")
	}
	if len(view.QualityURLs) != 3 {
		t.Errorf("quality urls = %v", view.QualityURLs)
	}
	for quality, url := range view.QualityURLs {
		if !strings.Contains(url, property.VideoQualityKeys[quality]) {
			t.Errorf("quality %s url = %s", quality, url)
		}
	}
}

func TestGetVideoSlot_SigningFailureSurfaces(t *testing.T) {
	property := existingProperty(nil, po.VideoStatusCompleted)
	property.VideoMasterKey = strPtr("missing/master.m3u8")

	// 对象不存在时 Memory 的签名会失败
	svc := newQueryService(t, &propertyRepoStub{property: property}, objectstore.NewMemory())

	if _, err := svc.GetVideoSlot(context.Background(), property.PropertyID); err == nil {
		t.Fatal("expected signing error to surface")
	}
}
