package services_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// newPublishJob 准备带真实暂存目录与源文件的发布任务。
func newPublishJob(t *testing.T) services.PublishJob {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	source := filepath.Join(scratch, "source.mp4")
	if err := os.WriteFile(source, []byte("raw-video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return services.PublishJob{
		PropertyID:       uuid.New(),
		SourcePath:       source,
		OriginalFileName: "tour.mp4",
		ScratchDir:       scratch,
	}
}

func newPublishService(t *testing.T, repo services.PropertyRepo, store objectstore.Store, tc services.Transcoder) *services.PublishService {
	t.Helper()
	svc, err := services.NewPublishService(repo, store, tc, log.NewStdLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewPublishService: %v", err)
	}
	return svc
}

func TestPublish_SuccessPersistsArtifacts(t *testing.T) {
	repo := &propertyRepoStub{}
	store := objectstore.NewMemory()
	tc := &scriptedTranscoder{info: deliveryReadyInfo()}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(repo.completeCalls) != 1 {
		t.Fatalf("expected 1 complete call, got %d", len(repo.completeCalls))
	}
	call := repo.completeCalls[0]
	if call.masterKey != objectstore.MasterPlaylistKey(job.PropertyID) {
		t.Errorf("master key = %s", call.masterKey)
	}
	if call.thumbnailKey != objectstore.ThumbnailKey(job.PropertyID, "cover.jpg") {
		t.Errorf("thumbnail key = %s", call.thumbnailKey)
	}
	if len(call.qualityKeys) != len(ffmpeg.Qualities()) {
		t.Errorf("quality keys = %v", call.qualityKeys)
	}
	for _, quality := range ffmpeg.Qualities() {
		want := objectstore.RenditionPlaylistKey(job.PropertyID, quality)
		if call.qualityKeys[quality] != want {
			t.Errorf("quality %s key = %s, want %s", quality, call.qualityKeys[quality], want)
		}
		if _, _, ok := store.Get(want); !ok {
			t.Errorf("rendition playlist %s not uploaded", want)
		}
	}
	if _, _, ok := store.Get(call.thumbnailKey); !ok {
		t.Error("thumbnail not uploaded")
	}
	if len(repo.failCalls) != 0 {
		t.Errorf("unexpected fail calls: %v", repo.failCalls)
	}
	if _, err := os.Stat(job.ScratchDir); !os.IsNotExist(err) {
		t.Error("scratch dir not cleaned after success")
	}
}

// 交付规格的源不做规范化，直接进阶梯编码。
func TestPublish_DeliveryReadySkipsNormalize(t *testing.T) {
	repo := &propertyRepoStub{}
	tc := &scriptedTranscoder{info: deliveryReadyInfo()}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(tc.normalized) != 0 {
		t.Errorf("normalize should be skipped, got %v", tc.normalized)
	}
	if tc.ladderInput != job.SourcePath {
		t.Errorf("ladder input = %s, want source %s", tc.ladderInput, job.SourcePath)
	}
}

func TestPublish_NonDeliverySourceIsNormalized(t *testing.T) {
	repo := &propertyRepoStub{}
	info := deliveryReadyInfo()
	info.VideoCodec = "vp9"
	info.Container = "matroska,webm"
	tc := &scriptedTranscoder{info: info}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(tc.normalized) != 1 {
		t.Fatalf("expected 1 normalize call, got %d", len(tc.normalized))
	}
	if tc.ladderInput != tc.normalized[0] {
		t.Errorf("ladder input = %s, want normalized %s", tc.ladderInput, tc.normalized[0])
	}
}

func TestPublish_SegmentTierFollowsDuration(t *testing.T) {
	repo := &propertyRepoStub{}
	info := deliveryReadyInfo()
	info.DurationSeconds = 45
	tc := &scriptedTranscoder{info: info}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)

	if err := svc.Publish(context.Background(), newPublishJob(t)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if tc.segSeconds != 4 {
		t.Errorf("segment seconds = %d, want 4 for 45s source", tc.segSeconds)
	}
}

func TestPublish_EncodeFailureMarksSlotFailed(t *testing.T) {
	repo := &propertyRepoStub{}
	store := objectstore.NewMemory()
	tc := &scriptedTranscoder{info: deliveryReadyInfo(), ladderErr: errStageFailed}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err == nil {
		t.Fatal("expected error from encode failure")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
	if !strings.Contains(repo.failCalls[0].message, "encode ladder") {
		t.Errorf("fail message = %q", repo.failCalls[0].message)
	}
	if len(repo.completeCalls) != 0 {
		t.Error("complete must not be called on failure")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("no objects should remain, got %v", keys)
	}
	if _, err := os.Stat(job.ScratchDir); !os.IsNotExist(err) {
		t.Error("scratch dir not cleaned after failure")
	}
}

// 规范化失败时还没有任何对象上云，只需落 failed 并清暂存。
func TestPublish_NormalizeFailureMarksSlotFailed(t *testing.T) {
	repo := &propertyRepoStub{}
	store := objectstore.NewMemory()
	info := deliveryReadyInfo()
	info.VideoCodec = "vp9"
	info.Container = "matroska,webm"
	tc := &scriptedTranscoder{info: info, normalizeErr: errStageFailed}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err == nil {
		t.Fatal("expected error from normalize failure")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
	if !strings.Contains(repo.failCalls[0].message, "normalize source") {
		t.Errorf("fail message = %q", repo.failCalls[0].message)
	}
	if len(repo.completeCalls) != 0 {
		t.Error("complete must not be called on failure")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("no objects should be uploaded, got %v", keys)
	}
	if _, err := os.Stat(job.ScratchDir); !os.IsNotExist(err) {
		t.Error("scratch dir not cleaned after failure")
	}
}

func TestPublish_ThumbnailFailureMarksSlotFailed(t *testing.T) {
	repo := &propertyRepoStub{}
	store := objectstore.NewMemory()
	tc := &scriptedTranscoder{info: deliveryReadyInfo(), thumbErr: errStageFailed}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err == nil {
		t.Fatal("expected error from thumbnail failure")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
	if !strings.Contains(repo.failCalls[0].message, "extract thumbnail") {
		t.Errorf("fail message = %q", repo.failCalls[0].message)
	}
	if len(repo.completeCalls) != 0 {
		t.Error("complete must not be called on failure")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("no objects should be uploaded, got %v", keys)
	}
	if _, err := os.Stat(job.ScratchDir); !os.IsNotExist(err) {
		t.Error("scratch dir not cleaned after failure")
	}
}

// 落库的失败原因必须是合法 UTF-8 且不超长，否则 text 列会拒收。
func TestPublish_FailureMessageSafeForStorage(t *testing.T) {
	repo := &propertyRepoStub{}
	stderr := "ffmpeg: \xff\xfe " + strings.Repeat("码流异常", 60)
	tc := &scriptedTranscoder{probeErr: errors.New(stderr)}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)

	if err := svc.Publish(context.Background(), newPublishJob(t)); err == nil {
		t.Fatal("expected probe failure")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
	msg := repo.failCalls[0].message
	if !utf8.ValidString(msg) {
		t.Errorf("fail message is not valid UTF-8: %q", msg)
	}
	if len(msg) > 500 {
		t.Errorf("fail message = %d bytes, want <= 500", len(msg))
	}
	if !strings.Contains(msg, "probe source") {
		t.Errorf("fail message = %q", msg)
	}
}

func TestPublish_CorruptSourceFailsAtProbe(t *testing.T) {
	repo := &propertyRepoStub{}
	tc := &scriptedTranscoder{probeErr: errStageFailed}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err == nil {
		t.Fatal("expected error for corrupt source")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
	if !strings.Contains(repo.failCalls[0].message, "probe source") {
		t.Errorf("fail message = %q", repo.failCalls[0].message)
	}
}

// 上传中途失败要回滚本批已写入的对象，不留半套产物。
func TestPublish_UploadFailureRollsBackObjects(t *testing.T) {
	repo := &propertyRepoStub{}
	store := &flakyStore{Memory: objectstore.NewMemory(), failKeySuffix: "cover.jpg"}
	tc := &scriptedTranscoder{info: deliveryReadyInfo()}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	if err := svc.Publish(context.Background(), job); err == nil {
		t.Fatal("expected error from upload failure")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("rollback should remove uploads, remaining: %v", keys)
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("expected 1 fail call, got %d", len(repo.failCalls))
	}
}

func TestPublish_MissingRenditionFailsJob(t *testing.T) {
	repo := &propertyRepoStub{}
	store := objectstore.NewMemory()
	tc := &scriptedTranscoder{
		info:        deliveryReadyInfo(),
		ladderFiles: []string{ffmpeg.MasterPlaylist, "1080p.m3u8", "720p.m3u8", "1080p_000.ts"},
	}
	svc := newPublishService(t, repo, store, tc)
	job := newPublishJob(t)

	err := svc.Publish(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for incomplete encode output")
	}
	if !strings.Contains(err.Error(), "encode output incomplete") {
		t.Errorf("err = %v", err)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("partial uploads should be rolled back, remaining: %v", keys)
	}
}

// 槽位已被并发改写时，迟到的成功结果只被丢弃，不报错。
func TestPublish_StaleOutcomeDiscardedQuietly(t *testing.T) {
	repo := &propertyRepoStub{completeDenied: true}
	tc := &scriptedTranscoder{info: deliveryReadyInfo()}
	svc := newPublishService(t, repo, objectstore.NewMemory(), tc)

	if err := svc.Publish(context.Background(), newPublishJob(t)); err != nil {
		t.Fatalf("discarded outcome must not error: %v", err)
	}
	if len(repo.completeCalls) != 1 {
		t.Fatalf("expected conditional complete attempt, got %d", len(repo.completeCalls))
	}
}
