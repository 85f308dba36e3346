// Package publish 实现进程内的发布任务队列：
// 无界 FIFO 待办 + 固定并发度的 worker 池，作为 Kratos transport.Server 随应用启停。
// 队列不持久化：进程重启时未开始的任务直接丢失，由启动清扫兜底修复槽位。
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed 表示任务在执行前队列已关停。
var ErrQueueClosed = errors.New("publish queue closed")

// Handle 是一个已提交任务的完成信号。
type Handle struct {
	done chan struct{}
	err  error // 在 close(done) 之前写入，之后只读
}

// Done 在任务结束后关闭。
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait 阻塞到任务结束或 ctx 取消。
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) settle(err error) {
	h.err = err
	close(h.done)
}

type task struct {
	fn     func(context.Context) error
	handle *Handle
}

// Queue 是单进程发布队列。
// 至多 concurrency 个任务体并发执行；任务按提交顺序出队（并发槽位释放顺序决定实际交错）。
type Queue struct {
	concurrency int
	log         *log.Helper

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []*task
	closed  bool

	runCtx  context.Context
	workers *errgroup.Group
}

// NewQueue 创建队列；concurrency 至少为 1。
func NewQueue(concurrency int, logger log.Logger) (*Queue, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("publish queue: concurrency must be >= 1, got %d", concurrency)
	}
	q := &Queue{
		concurrency: concurrency,
		log:         log.NewHelper(logger),
	}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// Enqueue 提交一个延迟任务并立即返回其 Handle。
// 队列深度不设上限（接受的运营风险）；队列已关停时任务直接以 ErrQueueClosed 结束。
func (q *Queue) Enqueue(fn func(context.Context) error) *Handle {
	handle := &Handle{done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		handle.settle(ErrQueueClosed)
		return handle
	}
	q.backlog = append(q.backlog, &task{fn: fn, handle: handle})
	depth := len(q.backlog)
	q.mu.Unlock()
	q.cond.Signal()

	if depth > q.concurrency*4 {
		q.log.Warnf("publish backlog deep: depth=%d concurrency=%d", depth, q.concurrency)
	}
	return handle
}

// Start 启动 worker 池；实现 kratos transport.Server。
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.workers != nil {
		q.mu.Unlock()
		return errors.New("publish queue: already started")
	}
	q.runCtx = ctx
	g := &errgroup.Group{}
	g.SetLimit(q.concurrency)
	q.workers = g
	q.mu.Unlock()

	for i := 0; i < q.concurrency; i++ {
		worker := i
		g.Go(func() error {
			q.workerLoop(worker)
			return nil
		})
	}
	q.log.Infof("publish queue started: concurrency=%d", q.concurrency)
	return nil
}

// Stop 关停队列：在执行的任务跑完，未开始的任务以 ErrQueueClosed 结束。
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	orphaned := q.backlog
	q.backlog = nil
	workers := q.workers
	q.mu.Unlock()
	q.cond.Broadcast()

	for _, t := range orphaned {
		t.handle.settle(ErrQueueClosed)
	}
	if len(orphaned) > 0 {
		q.log.Warnf("publish queue dropped %d unstarted jobs on shutdown", len(orphaned))
	}

	if workers == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("publish queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish queue: shutdown timed out: %w", ctx.Err())
	}
}

func (q *Queue) workerLoop(worker int) {
	for {
		q.mu.Lock()
		for len(q.backlog) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.backlog) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		t := q.backlog[0]
		q.backlog = q.backlog[1:]
		ctx := q.runCtx
		q.mu.Unlock()

		t.handle.settle(q.runTask(ctx, worker, t.fn))
	}
}

// runTask 执行任务体并把 panic 转成错误，避免单个任务拖垮整个进程。
func (q *Queue) runTask(ctx context.Context, worker int, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish job panicked: %v", r)
			q.log.Errorf("worker %d recovered from panic: %v", worker, r)
		}
	}()
	return fn(ctx)
}
