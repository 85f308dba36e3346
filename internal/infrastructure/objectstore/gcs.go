package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
)

// GCS 是 Store 的 Google Cloud Storage 实现。
// 签名 URL 使用 V4 Scheme，私钥来自注入或默认凭据中的 service account JSON。
type GCS struct {
	client         *storage.Client
	bucket         string
	googleAccessID string
	privateKey     []byte
	now            func() time.Time
	log            *log.Helper
}

// Option 定义可选配置。
type Option func(*GCS)

// WithClock 覆盖时间获取函数，便于测试。
func WithClock(clock func() time.Time) Option {
	return func(g *GCS) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithServiceAccountKey 允许直接注入访问 ID 与私钥（测试友好）。
func WithServiceAccountKey(accessID string, privateKey []byte) Option {
	return func(g *GCS) {
		if accessID != "" {
			g.googleAccessID = accessID
		}
		if len(privateKey) > 0 {
			g.privateKey = append([]byte(nil), privateKey...)
		}
	}
}

// NewGCS 创建 GCS Store，要求默认凭据中包含 service account 私钥。
// 返回 cleanup 关闭底层 HTTP 客户端。
func NewGCS(ctx context.Context, cfg configloader.StorageConfig, logger log.Logger, opts ...Option) (*GCS, func(), error) {
	if cfg.Bucket == "" {
		return nil, nil, errors.New("objectstore: bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("objectstore: create gcs client: %w", err)
	}

	g := &GCS{
		client:         client,
		bucket:         cfg.Bucket,
		googleAccessID: cfg.SignerServiceAccount,
		now:            time.Now,
		log:            log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(g)
	}

	if len(g.privateKey) == 0 {
		privKey, detectedAccessID, err := loadServiceAccountKey(ctx)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("objectstore: init signer: %w", err)
		}
		g.privateKey = privKey
		if g.googleAccessID == "" {
			g.googleAccessID = detectedAccessID
		} else if detectedAccessID != "" && detectedAccessID != g.googleAccessID {
			g.log.WithContext(ctx).Warnf("gcs signer access id mismatch: config=%s credentials=%s", g.googleAccessID, detectedAccessID)
		}
	}

	if g.googleAccessID == "" {
		_ = client.Close()
		return nil, nil, errors.New("objectstore: google access id is required")
	}

	cleanup := func() {
		g.log.Info("closing gcs client")
		_ = client.Close()
	}
	return g, cleanup, nil
}

// Put 上传对象并设置 Content-Type。
func (g *GCS) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if key == "" {
		return errors.New("objectstore: key is required")
	}
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: commit %s: %w", key, err)
	}
	return nil
}

// SignedReadURL 生成对象的 V4 只读签名 URL。
func (g *GCS) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("objectstore: key is required")
	}
	if ttl <= 0 {
		return "", errors.New("objectstore: ttl must be positive")
	}

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        g.now().Add(ttl),
		GoogleAccessID: g.googleAccessID,
		PrivateKey:     g.privateKey,
	}
	url, err := storage.SignedURL(g.bucket, key, opts)
	if err != nil {
		g.log.WithContext(ctx).Errorf("generate signed url failed: bucket=%s object=%s err=%v", g.bucket, key, err)
		return "", fmt.Errorf("objectstore: signed url: %w", err)
	}
	return url, nil
}

// Delete 删除单个对象；对象缺失视为成功。
func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix 列出并删除前缀下的全部对象。
// Objects 迭代器内部按页拉取，循环直到 iterator.Done 覆盖完整列表。
func (g *GCS) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("objectstore: prefix is required")
	}

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("objectstore: list %s: %w", prefix, err)
		}
		if err := g.Delete(ctx, attrs.Name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

type serviceAccountKey struct {
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
}

func loadServiceAccountKey(ctx context.Context) ([]byte, string, error) {
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("find default credentials: %w", err)
	}
	if len(creds.JSON) == 0 {
		return nil, "", errors.New("service account JSON not found in default credentials")
	}

	var key serviceAccountKey
	if err := json.Unmarshal(creds.JSON, &key); err != nil {
		return nil, "", fmt.Errorf("parse service account json: %w", err)
	}
	if key.PrivateKey == "" {
		return nil, "", errors.New("service account private key is empty; use a service account JSON credential")
	}
	return []byte(key.PrivateKey), key.ClientEmail, nil
}
