package idempotency

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
)

const (
	// DefaultMaxKeyLength is the maximum length for an idempotency key
	DefaultMaxKeyLength = 255

	// DefaultLockTimeout is the age after which a held key is considered abandoned
	DefaultLockTimeout = 30 * time.Second

	// DefaultRetentionPeriod is how long completed keys are kept
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the maximum response size to cache (1MB)
	DefaultMaxResponseSize = 1 * 1024 * 1024
)

// Config holds configuration for the idempotency middleware
type Config struct {
	// ServiceName scopes keys to this service
	ServiceName string

	Repository KeyRepository

	// RequireKey rejects mutating requests without an Idempotency-Key header
	RequireKey bool

	// OnlyMutating skips GET and HEAD requests
	OnlyMutating bool

	// UserIDExtractor scopes keys per caller when set
	UserIDExtractor func(*gin.Context) string

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration

	// MaxResponseSize bounds the cached body; larger responses are not cached
	MaxResponseSize int

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns a default configuration for the given service
func DefaultConfig(serviceName string, repository KeyRepository, logger *logging.Logger) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		RequireKey:      false,
		OnlyMutating:    true,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
		Logger:          logger,
	}
}
