package objectstore

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// signedURLSafetyMargin 让缓存条目早于真实签名过期失效，
// 避免把一个刚好到期的 URL 交给客户端。
const signedURLSafetyMargin = 30 * time.Second

type urlCacheEntry struct {
	url       string
	expiresAt time.Time
}

// CachingStore 在任意 Store 之上缓存签名 URL。
// 写入与删除会使对应缓存条目失效；后台定时清扫过期条目。
type CachingStore struct {
	inner Store
	now   func() time.Time
	log   *log.Helper

	mu      sync.Mutex
	entries map[string]urlCacheEntry

	stopOnce sync.Once
	stop     chan struct{}
}

// NewCachingStore 包装 inner 并启动周期清扫；返回的 cleanup 停止清扫协程。
func NewCachingStore(inner Store, sweepInterval time.Duration, logger log.Logger) (*CachingStore, func()) {
	c := &CachingStore{
		inner:   inner,
		now:     time.Now,
		log:     log.NewHelper(logger),
		entries: make(map[string]urlCacheEntry),
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	cleanup := func() {
		c.stopOnce.Do(func() { close(c.stop) })
	}
	return c, cleanup
}

// Put 透传写入并使同 key 的缓存 URL 失效（对象内容已变化）。
func (c *CachingStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if err := c.inner.Put(ctx, key, contentType, r); err != nil {
		return err
	}
	c.evict(key)
	return nil
}

// SignedReadURL 命中未过期缓存时直接返回，否则生成并缓存。
func (c *CachingStore) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if now.Before(entry.expiresAt) {
			url := entry.url
			c.mu.Unlock()
			return url, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	url, err := c.inner.SignedReadURL(ctx, key, ttl)
	if err != nil {
		return "", err
	}

	if ttl > signedURLSafetyMargin {
		c.mu.Lock()
		c.entries[key] = urlCacheEntry{url: url, expiresAt: now.Add(ttl - signedURLSafetyMargin)}
		c.mu.Unlock()
	}
	return url, nil
}

// Delete 透传删除并驱逐对应缓存条目。
func (c *CachingStore) Delete(ctx context.Context, key string) error {
	if err := c.inner.Delete(ctx, key); err != nil {
		return err
	}
	c.evict(key)
	return nil
}

// DeletePrefix 透传前缀删除并驱逐前缀下的全部缓存条目。
func (c *CachingStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	count, err := c.inner.DeletePrefix(ctx, prefix)
	if err != nil {
		return count, err
	}
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return count, nil
}

func (c *CachingStore) evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *CachingStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep 移除全部已过期条目。
func (c *CachingStore) sweep() {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()
	if removed > 0 {
		c.log.Debugf("signed url cache sweep: removed=%d remaining=%d", removed, remaining)
	}
}

// cachedLen 仅测试使用。
func (c *CachingStore) cachedLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ Store = (*CachingStore)(nil)
