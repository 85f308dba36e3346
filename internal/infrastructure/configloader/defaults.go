package configloader

import "time"

const (
	// defaultConfPath is the fallback configuration directory when no overrides are provided.
	defaultConfPath = "configs"
	// defaultEnvironment is used when APP_ENV is missing.
	defaultEnvironment = "development"
	// defaultHTTPAddr is used when neither config nor PORT provide an address.
	defaultHTTPAddr = ":8000"
	// defaultHTTPTimeout bounds a single HTTP request.
	defaultHTTPTimeout = 30 * time.Second

	// defaultSignedURLTTL is the lifetime of a presigned playback URL.
	defaultSignedURLTTL = 15 * time.Minute
	// defaultCacheSweepInterval is how often expired signed-URL cache entries are purged.
	defaultCacheSweepInterval = 5 * time.Minute

	// defaultPublishConcurrency bounds simultaneous transcode-and-publish jobs.
	defaultPublishConcurrency = 2
	// defaultTranscodeTimeout is the wall-clock ceiling for one ladder encode.
	defaultTranscodeTimeout = 20 * time.Minute
	// defaultStaleAfter is the age past which a queued video slot is considered abandoned.
	defaultStaleAfter = 2 * time.Hour

	// defaultMaxImages caps images per property after a reconcile operation.
	defaultMaxImages = 20
	// defaultMaxVideos caps videos per property; the pipeline assumes a single slot.
	defaultMaxVideos = 1
)

var envFileNames = []string{".env.local", ".env"}

const (
	envConfPath       = "CONF_PATH"
	envServiceName    = "SERVICE_NAME"
	envServiceVersion = "SERVICE_VERSION"
	envAppEnv         = "APP_ENV"
	envDatabaseURL    = "DATABASE_URL"
	envPort           = "PORT"
	envStorageBucket  = "STORAGE_BUCKET"
)
