// Package configloader 负责加载 bootstrap 配置并归一化为强类型的 RuntimeConfig。
// 配置来源优先级：显式 flag > CONF_PATH 环境变量 > 默认 configs 目录；
// DATABASE_URL、PORT 等环境变量在文件配置之上覆盖。
package configloader

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	obswire "github.com/bionicotaku/lingo-utils/observability"
	txconfig "github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/joho/godotenv"
)

// Params 包含构造配置 Bundle 所需的运行时输入参数。
type Params struct {
	ConfPath string // 配置文件路径（可为空，使用默认值）
}

// ServiceMetadata 保存服务标识信息，供日志和可观测性组件使用。
type ServiceMetadata struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// ServerConfig 描述 HTTP 服务监听参数。
type ServerConfig struct {
	Network string
	Address string
	Timeout time.Duration
}

// DatabaseConfig 描述 PostgreSQL 连接池参数。
type DatabaseConfig struct {
	DSN               string
	MaxOpenConns      int32
	MinOpenConns      int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	Schema            string
	PreparedStmts     bool
}

// StorageConfig 描述对象存储与签名 URL 参数。
type StorageConfig struct {
	Bucket               string
	SignerServiceAccount string
	SignedURLTTL         time.Duration
	CacheSweepInterval   time.Duration
}

// PipelineConfig 描述视频发布流水线参数。
type PipelineConfig struct {
	Concurrency      int
	ScratchDir       string
	TranscodeTimeout time.Duration
	MaxImages        int
	MaxVideos        int
	StaleAfter       time.Duration
	SweepOnStart     bool
}

// RuntimeConfig 聚合归一化后的配置片段，供下游 Wire 注入使用。
type RuntimeConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

// Bundle 聚合配置与服务元信息。
type Bundle struct {
	Runtime   *RuntimeConfig
	Service   ServiceMetadata
	ObsConfig obswire.ObservabilityConfig
	TxConfig  txconfig.Config
}

// ObservabilityInfo 将服务元信息转换为 observability.ServiceInfo。
func (m ServiceMetadata) ObservabilityInfo() obswire.ServiceInfo {
	return obswire.ServiceInfo{
		Name:        m.Name,
		Version:     m.Version,
		Environment: m.Environment,
	}
}


// BuildError 捕获配置构建过程中的上下文错误信息。
type BuildError struct {
	Stage string
	Path  string
	Err   error
}

// Error 实现 error 接口，提供包含上下文的错误信息。
func (e BuildError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s at %q: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式查询。
func (e BuildError) Unwrap() error {
	return e.Err
}

// fileConfig 与 configs/config.yaml 的布局一一对应，仅在加载阶段使用。
type fileConfig struct {
	Server struct {
		HTTP struct {
			Network string `json:"network"`
			Addr    string `json:"addr"`
			Timeout string `json:"timeout"`
		} `json:"http"`
	} `json:"server"`
	Data struct {
		Postgres struct {
			DSN               string `json:"dsn"`
			MaxOpenConns      int32  `json:"max_open_conns"`
			MinOpenConns      int32  `json:"min_open_conns"`
			MaxConnLifetime   string `json:"max_conn_lifetime"`
			MaxConnIdleTime   string `json:"max_conn_idle_time"`
			HealthCheckPeriod string `json:"health_check_period"`
			Schema            string `json:"schema"`
			PreparedStmts     bool   `json:"prepared_statements_enabled"`
			Transaction       struct {
				DefaultIsolation string `json:"default_isolation"`
				DefaultTimeout   string `json:"default_timeout"`
				LockTimeout      string `json:"lock_timeout"`
				MaxRetries       int    `json:"max_retries"`
			} `json:"transaction"`
		} `json:"postgres"`
	} `json:"data"`
	Storage struct {
		Bucket               string `json:"bucket"`
		SignerServiceAccount string `json:"signer_service_account"`
		SignedURLTTL         string `json:"signed_url_ttl"`
		CacheSweepInterval   string `json:"cache_sweep_interval"`
	} `json:"storage"`
	Pipeline struct {
		Concurrency      int    `json:"concurrency"`
		ScratchDir       string `json:"scratch_dir"`
		TranscodeTimeout string `json:"transcode_timeout"`
		MaxImages        int    `json:"max_images"`
		MaxVideos        int    `json:"max_videos"`
		StaleAfter       string `json:"stale_after"`
		SweepOnStart     bool   `json:"sweep_on_start"`
	} `json:"pipeline"`
	Observability struct {
		Tracing struct {
			Enabled       bool    `json:"enabled"`
			Exporter      string  `json:"exporter"`
			Endpoint      string  `json:"endpoint"`
			Insecure      bool    `json:"insecure"`
			SamplingRatio float64 `json:"sampling_ratio"`
		} `json:"tracing"`
		Metrics struct {
			Enabled  bool   `json:"enabled"`
			Exporter string `json:"exporter"`
			Endpoint string `json:"endpoint"`
			Insecure bool   `json:"insecure"`
		} `json:"metrics"`
	} `json:"observability"`
}

// toObservabilityConfig 将文件配置转换为 observability 包的规范化结构。
func toObservabilityConfig(fc fileConfig) obswire.ObservabilityConfig {
	cfg := obswire.ObservabilityConfig{}
	if tr := fc.Observability.Tracing; tr.Enabled {
		cfg.Tracing = &obswire.TracingConfig{
			Enabled:       tr.Enabled,
			Exporter:      tr.Exporter,
			Endpoint:      tr.Endpoint,
			Insecure:      tr.Insecure,
			SamplingRatio: tr.SamplingRatio,
		}
	}
	if mt := fc.Observability.Metrics; mt.Enabled {
		cfg.Metrics = &obswire.MetricsConfig{
			Enabled:  mt.Enabled,
			Exporter: mt.Exporter,
			Endpoint: mt.Endpoint,
			Insecure: mt.Insecure,
		}
	}
	return cfg
}

// toTxManagerConfig 将 Postgres 事务片段转换为 txmanager.Config。
func toTxManagerConfig(fc fileConfig) (txconfig.Config, error) {
	tx := fc.Data.Postgres.Transaction
	cfg := txconfig.Config{
		DefaultIsolation: tx.DefaultIsolation,
		MaxRetries:       tx.MaxRetries,
	}
	if err := overrideDuration(&cfg.DefaultTimeout, tx.DefaultTimeout, "data.postgres.transaction.default_timeout"); err != nil {
		return cfg, err
	}
	if err := overrideDuration(&cfg.LockTimeout, tx.LockTimeout, "data.postgres.transaction.lock_timeout"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Build 从 bootstrap 配置文件构建 Bundle，包含配置对象和服务元信息。
//
// 流程：
// 1. 解析配置路径（应用回退规则）并加载 .env 文件
// 2. 加载 YAML 配置并扫描为 fileConfig
// 3. 应用环境变量覆盖与默认值
// 4. 校验必填项
func Build(params Params) (*Bundle, error) {
	confPath := ResolveConfPath(params.ConfPath)
	loadEnvFiles(confPath)

	var fc fileConfig
	if confPath != "" {
		if _, err := os.Stat(confPath); err == nil {
			source := config.New(config.WithSource(file.NewSource(confPath)))
			defer source.Close()
			if err := source.Load(); err != nil {
				return nil, BuildError{Stage: "load", Path: confPath, Err: err}
			}
			if err := source.Scan(&fc); err != nil {
				return nil, BuildError{Stage: "scan", Path: confPath, Err: err}
			}
		}
	}

	rc, err := normalize(fc)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(rc)

	if rc.Database.DSN == "" {
		return nil, BuildError{Stage: "validate", Err: fmt.Errorf("postgres DSN is required (set data.postgres.dsn or DATABASE_URL)")}
	}
	if rc.Storage.Bucket == "" {
		return nil, BuildError{Stage: "validate", Err: fmt.Errorf("storage bucket is required (set storage.bucket or STORAGE_BUCKET)")}
	}

	txCfg, err := toTxManagerConfig(fc)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Runtime:   rc,
		Service:   buildServiceMetadata(),
		ObsConfig: toObservabilityConfig(fc),
		TxConfig:  txCfg,
	}, nil
}

// ResolveConfPath 应用回退规则确定要加载的配置目录/文件路径。
// 优先级：显式传入路径 > CONF_PATH 环境变量 > 默认路径。
func ResolveConfPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envConfPath); env != "" {
		return env
	}
	return defaultConfPath
}

func normalize(fc fileConfig) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{}

	rc.Server = ServerConfig{
		Network: fc.Server.HTTP.Network,
		Address: fc.Server.HTTP.Addr,
		Timeout: defaultHTTPTimeout,
	}
	if rc.Server.Address == "" {
		rc.Server.Address = defaultHTTPAddr
	}
	if err := overrideDuration(&rc.Server.Timeout, fc.Server.HTTP.Timeout, "server.http.timeout"); err != nil {
		return nil, err
	}

	pg := fc.Data.Postgres
	rc.Database = DatabaseConfig{
		DSN:           pg.DSN,
		MaxOpenConns:  pg.MaxOpenConns,
		MinOpenConns:  pg.MinOpenConns,
		Schema:        pg.Schema,
		PreparedStmts: pg.PreparedStmts,
	}
	for _, d := range []struct {
		dst   *time.Duration
		raw   string
		field string
	}{
		{&rc.Database.MaxConnLifetime, pg.MaxConnLifetime, "data.postgres.max_conn_lifetime"},
		{&rc.Database.MaxConnIdleTime, pg.MaxConnIdleTime, "data.postgres.max_conn_idle_time"},
		{&rc.Database.HealthCheckPeriod, pg.HealthCheckPeriod, "data.postgres.health_check_period"},
	} {
		if err := overrideDuration(d.dst, d.raw, d.field); err != nil {
			return nil, err
		}
	}

	rc.Storage = StorageConfig{
		Bucket:               fc.Storage.Bucket,
		SignerServiceAccount: fc.Storage.SignerServiceAccount,
		SignedURLTTL:         defaultSignedURLTTL,
		CacheSweepInterval:   defaultCacheSweepInterval,
	}
	if err := overrideDuration(&rc.Storage.SignedURLTTL, fc.Storage.SignedURLTTL, "storage.signed_url_ttl"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&rc.Storage.CacheSweepInterval, fc.Storage.CacheSweepInterval, "storage.cache_sweep_interval"); err != nil {
		return nil, err
	}

	rc.Pipeline = PipelineConfig{
		Concurrency:      fc.Pipeline.Concurrency,
		ScratchDir:       fc.Pipeline.ScratchDir,
		TranscodeTimeout: defaultTranscodeTimeout,
		MaxImages:        fc.Pipeline.MaxImages,
		MaxVideos:        fc.Pipeline.MaxVideos,
		StaleAfter:       defaultStaleAfter,
		SweepOnStart:     fc.Pipeline.SweepOnStart,
	}
	if rc.Pipeline.Concurrency <= 0 {
		rc.Pipeline.Concurrency = defaultPublishConcurrency
	}
	if rc.Pipeline.ScratchDir == "" {
		rc.Pipeline.ScratchDir = filepath.Join(os.TempDir(), "listing-publish")
	}
	if rc.Pipeline.MaxImages <= 0 {
		rc.Pipeline.MaxImages = defaultMaxImages
	}
	if rc.Pipeline.MaxVideos <= 0 {
		rc.Pipeline.MaxVideos = defaultMaxVideos
	}
	if err := overrideDuration(&rc.Pipeline.TranscodeTimeout, fc.Pipeline.TranscodeTimeout, "pipeline.transcode_timeout"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&rc.Pipeline.StaleAfter, fc.Pipeline.StaleAfter, "pipeline.stale_after"); err != nil {
		return nil, err
	}

	return rc, nil
}

func overrideDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return BuildError{Stage: "parse", Path: field, Err: err}
	}
	if parsed > 0 {
		*dst = parsed
	}
	return nil
}

func applyEnvOverrides(rc *RuntimeConfig) {
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		rc.Database.DSN = dsn
	}
	if bucket := os.Getenv(envStorageBucket); bucket != "" {
		rc.Storage.Bucket = bucket
	}
	if port := os.Getenv(envPort); port != "" {
		// Cloud Run 风格：PORT 仅携带端口号。
		if _, _, err := net.SplitHostPort(port); err == nil {
			rc.Server.Address = port
		} else {
			rc.Server.Address = ":" + port
		}
	}
}

// loadEnvFiles 依次加载配置目录与工作目录下的 .env.local / .env（已存在的变量不覆盖）。
func loadEnvFiles(confPath string) {
	dirs := []string{"."}
	if confPath != "" {
		dirs = append(dirs, filepath.Dir(confPath), confPath)
	}
	for _, dir := range dirs {
		for _, name := range envFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			_ = godotenv.Load(path)
		}
	}
}

func buildServiceMetadata() ServiceMetadata {
	name := os.Getenv(envServiceName)
	if name == "" {
		name = "estate-services-listing"
	}
	version := os.Getenv(envServiceVersion)
	if version == "" {
		version = "dev"
	}
	env := os.Getenv(envAppEnv)
	if env == "" {
		env = defaultEnvironment
	}
	host, _ := os.Hostname()
	return ServiceMetadata{
		Name:        name,
		Version:     version,
		Environment: env,
		InstanceID:  host,
	}
}
