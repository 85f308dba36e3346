package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryListPageSize 刻意取小值，让前缀删除在测试里也要跨多页列举。
const memoryListPageSize = 3

// Memory 是 Store 的内存实现，用于单元测试与本地开发。
// 列举按 key 排序并分页，贴近真实对象存储的行为。
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemory 创建空的内存对象存储。
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

// Put 写入（或覆盖）一个对象。
func (m *Memory) Put(_ context.Context, key, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("objectstore: read body for %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{contentType: contentType, data: data}
	m.mu.Unlock()
	return nil
}

// SignedReadURL 返回带过期时间戳的伪签名 URL；对象缺失时报错。
func (m *Memory) SignedReadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	_, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("objectstore: object %s not found", key)
	}
	return fmt.Sprintf("https://storage.invalid/%s?expires=%d", key, time.Now().Add(ttl).Unix()), nil
}

// Delete 删除对象；缺失视为成功。
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix 分页列举并删除前缀下的全部对象。
func (m *Memory) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	cursor := ""
	for {
		keys := m.listPage(prefix, cursor)
		if len(keys) == 0 {
			return deleted, nil
		}
		for _, key := range keys {
			if err := m.Delete(ctx, key); err != nil {
				return deleted, err
			}
			deleted++
		}
		cursor = keys[len(keys)-1]
	}
}

// listPage 返回排序后 key > cursor 且匹配前缀的下一页。
func (m *Memory) listPage(prefix, cursor string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, memoryListPageSize)
	all := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) && key > cursor {
			all = append(all, key)
		}
	}
	sort.Strings(all)
	for _, key := range all {
		keys = append(keys, key)
		if len(keys) == memoryListPageSize {
			break
		}
	}
	return keys
}

// Get 返回对象内容与 Content-Type，仅测试使用。
func (m *Memory) Get(key string) (string, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return "", nil, false
	}
	return obj.contentType, bytes.Clone(obj.data), true
}

// Keys 返回全部对象键（排序），仅测试使用。
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*Memory)(nil)
