package configloader

import (
	obswire "github.com/bionicotaku/lingo-utils/observability"
	txconfig "github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/wire"
)

// ProviderSet exposes configuration-derived dependencies for Wire graphs.
var ProviderSet = wire.NewSet(
	ProvideServiceMetadata,
	ProvideRuntimeConfig,
	ProvideServerConfig,
	ProvideDatabaseConfig,
	ProvideStorageConfig,
	ProvidePipelineConfig,
	ProvideObservabilityConfig,
	ProvideTxManagerConfig,
)

// ProvideServiceMetadata returns the resolved ServiceMetadata from the bundle.
func ProvideServiceMetadata(b *Bundle) ServiceMetadata {
	if b == nil {
		return ServiceMetadata{}
	}
	return b.Service
}

// ProvideRuntimeConfig exposes the strongly typed runtime configuration.
func ProvideRuntimeConfig(b *Bundle) *RuntimeConfig {
	if b == nil {
		return nil
	}
	return b.Runtime
}

// ProvideServerConfig returns the server section of the runtime configuration.
func ProvideServerConfig(rc *RuntimeConfig) ServerConfig {
	if rc == nil {
		return ServerConfig{}
	}
	return rc.Server
}

// ProvideDatabaseConfig returns the database section of the runtime configuration.
func ProvideDatabaseConfig(rc *RuntimeConfig) DatabaseConfig {
	if rc == nil {
		return DatabaseConfig{}
	}
	return rc.Database
}

// ProvideStorageConfig returns the object-storage section of the runtime configuration.
func ProvideStorageConfig(rc *RuntimeConfig) StorageConfig {
	if rc == nil {
		return StorageConfig{}
	}
	return rc.Storage
}

// ProvidePipelineConfig returns the publish-pipeline section of the runtime configuration.
func ProvidePipelineConfig(rc *RuntimeConfig) PipelineConfig {
	if rc == nil {
		return PipelineConfig{}
	}
	return rc.Pipeline
}

// ProvideObservabilityConfig exposes the normalized observability configuration.
func ProvideObservabilityConfig(b *Bundle) obswire.ObservabilityConfig {
	if b == nil {
		return obswire.ObservabilityConfig{}
	}
	return b.ObsConfig
}

// ProvideTxManagerConfig exposes the transaction-manager configuration.
func ProvideTxManagerConfig(b *Bundle) txconfig.Config {
	if b == nil {
		return txconfig.Config{}
	}
	return b.TxConfig
}
