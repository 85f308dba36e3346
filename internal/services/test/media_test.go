// 共享桩：仓储、事务管理器、转码器、队列与可注入故障的对象存储。
package services_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/models/po"
	"github.com/bionicotaku/estate-services-listing/internal/services"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type noopTxManager struct{}

type noopSession struct{}

func (noopSession) Tx() pgx.Tx               { return nil }
func (noopSession) Context() context.Context { return context.Background() }

func (noopTxManager) WithinTx(ctx context.Context, _ txmanager.TxOptions, fn func(context.Context, txmanager.Session) error) error {
	return fn(ctx, noopSession{})
}

func (noopTxManager) WithinReadOnlyTx(ctx context.Context, _ txmanager.TxOptions, fn func(context.Context, txmanager.Session) error) error {
	return fn(ctx, noopSession{})
}

type completeCall struct {
	propertyID   uuid.UUID
	masterKey    string
	thumbnailKey string
	qualityKeys  map[string]string
}

type failCall struct {
	propertyID uuid.UUID
	message    string
}

type sweepCall struct {
	cutoff time.Time
	reason string
}

// propertyRepoStub 以可配置的返回值实现 services.PropertyRepo。
type propertyRepoStub struct {
	mu sync.Mutex

	property *po.Property
	getErr   error

	queued  []uuid.UUID
	markErr error

	completeCalls  []completeCall
	completeDenied bool
	completeErr    error

	failCalls  []failCall
	failDenied bool
	failErr    error

	cleared  []uuid.UUID
	clearErr error

	updatedKeys [][]string
	updateErr   error

	sweepCalls []sweepCall
	sweepCount int
	sweepErr   error
}

func (s *propertyRepoStub) GetByID(context.Context, txmanager.Session, uuid.UUID) (*po.Property, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.property == nil {
		return nil, services.ErrPropertyNotFound
	}
	return s.property, nil
}

func (s *propertyRepoStub) MarkVideoQueued(_ context.Context, _ txmanager.Session, propertyID uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.mu.Lock()
	s.queued = append(s.queued, propertyID)
	s.mu.Unlock()
	return nil
}

func (s *propertyRepoStub) CompleteVideoPublish(_ context.Context, _ txmanager.Session, propertyID uuid.UUID, masterKey, thumbnailKey string, qualityKeys map[string]string) (bool, error) {
	if s.completeErr != nil {
		return false, s.completeErr
	}
	s.mu.Lock()
	s.completeCalls = append(s.completeCalls, completeCall{
		propertyID:   propertyID,
		masterKey:    masterKey,
		thumbnailKey: thumbnailKey,
		qualityKeys:  qualityKeys,
	})
	s.mu.Unlock()
	return !s.completeDenied, nil
}

func (s *propertyRepoStub) FailVideoPublish(_ context.Context, _ txmanager.Session, propertyID uuid.UUID, errorMessage string) (bool, error) {
	if s.failErr != nil {
		return false, s.failErr
	}
	s.mu.Lock()
	s.failCalls = append(s.failCalls, failCall{propertyID: propertyID, message: errorMessage})
	s.mu.Unlock()
	return !s.failDenied, nil
}

func (s *propertyRepoStub) ClearVideoSlot(_ context.Context, _ txmanager.Session, propertyID uuid.UUID) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.mu.Lock()
	s.cleared = append(s.cleared, propertyID)
	s.mu.Unlock()
	return nil
}

func (s *propertyRepoStub) UpdateImageKeys(_ context.Context, _ txmanager.Session, _ uuid.UUID, imageKeys []string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	s.updatedKeys = append(s.updatedKeys, imageKeys)
	s.mu.Unlock()
	return nil
}

func (s *propertyRepoStub) SweepStaleQueued(_ context.Context, _ txmanager.Session, cutoff time.Time, reason string) (int, error) {
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	s.mu.Lock()
	s.sweepCalls = append(s.sweepCalls, sweepCall{cutoff: cutoff, reason: reason})
	s.mu.Unlock()
	return s.sweepCount, nil
}

// scriptedTranscoder 把转码流程替换为落盘假产物，可在任意步骤注入失败。
type scriptedTranscoder struct {
	info         ffmpeg.MediaInfo
	probeErr     error
	normalizeErr error
	ladderErr    error
	thumbErr     error

	// ladderFiles 为空时产出完整阶梯（主清单 + 三档清单与分片）。
	ladderFiles []string

	normalized  []string
	ladderInput string
	segSeconds  int
}

func fullLadderFiles() []string {
	files := []string{ffmpeg.MasterPlaylist}
	for _, quality := range ffmpeg.Qualities() {
		files = append(files, quality+".m3u8", quality+"_000.ts", quality+"_001.ts")
	}
	return files
}

func (t *scriptedTranscoder) Probe(context.Context, string) (ffmpeg.MediaInfo, error) {
	if t.probeErr != nil {
		return ffmpeg.MediaInfo{}, t.probeErr
	}
	return t.info, nil
}

func (t *scriptedTranscoder) Normalize(_ context.Context, _ string, dst string) error {
	if t.normalizeErr != nil {
		return t.normalizeErr
	}
	t.normalized = append(t.normalized, dst)
	return os.WriteFile(dst, []byte("normalized"), 0o644)
}

func (t *scriptedTranscoder) EncodeLadder(_ context.Context, src, outDir string, segSeconds int, _ bool) error {
	if t.ladderErr != nil {
		return t.ladderErr
	}
	t.ladderInput = src
	t.segSeconds = segSeconds
	files := t.ladderFiles
	if files == nil {
		files = fullLadderFiles()
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte("artifact"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (t *scriptedTranscoder) Thumbnail(_ context.Context, _ string, dst string, _ float64) error {
	if t.thumbErr != nil {
		return t.thumbErr
	}
	return os.WriteFile(dst, []byte("jpeg"), 0o644)
}

func deliveryReadyInfo() ffmpeg.MediaInfo {
	return ffmpeg.MediaInfo{
		DurationSeconds: 95,
		Width:           1920,
		Height:          1080,
		VideoCodec:      "h264",
		AudioCodec:      "aac",
		Container:       "mov,mp4,m4a,3gp,3g2,mj2",
		HasVideo:        true,
		HasAudio:        true,
	}
}

// manualQueue 只捕获任务体，由测试决定是否执行。
type manualQueue struct {
	fns []func(context.Context) error
}

type settledFuture struct{}

func (settledFuture) Wait(context.Context) error { return nil }

func (settledFuture) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (q *manualQueue) Enqueue(fn func(context.Context) error) services.Future {
	q.fns = append(q.fns, fn)
	return settledFuture{}
}

// publisherStub 记录被调度的发布任务。
type publisherStub struct {
	jobs []services.PublishJob
	err  error
}

func (p *publisherStub) Publish(_ context.Context, job services.PublishJob) error {
	p.jobs = append(p.jobs, job)
	return p.err
}

// flakyStore 在指定键后缀或第 N 次写入时注入失败。
type flakyStore struct {
	*objectstore.Memory
	failKeySuffix string
	failAtPut     int
	puts          int
}

var (
	errPutRefused  = errors.New("objectstore: put refused")
	errStageFailed = errors.New("media stage failed")
)

func (s *flakyStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	s.puts++
	if s.failKeySuffix != "" && strings.HasSuffix(key, s.failKeySuffix) {
		return errPutRefused
	}
	if s.failAtPut > 0 && s.puts >= s.failAtPut {
		return errPutRefused
	}
	return s.Memory.Put(ctx, key, contentType, r)
}

// stageTestImage 在临时目录里落一个待上传的图片文件。
func stageTestImage(dir, name string) services.StagedImage {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("image-bytes"), 0o644); err != nil {
		panic(err)
	}
	return services.StagedImage{LocalPath: path, OriginalName: name}
}
