package config

import "time"

var (
	DefaultResolveAttempts = 3
	DefaultCooldown        = 30 * time.Second
	DefaultSessionTTL      = 15 * time.Minute

	ResolveRequestTimeout  = 15 * time.Second
	ResolveRetryWait       = 2 * time.Second
	ResolveRetryJitterMin  = 1 * time.Second
	ResolveRetryJitterMax  = 3 * time.Second
	SizePreCheckTimeout    = 15 * time.Second
	RelayDownloadTimeout   = 300 * time.Second
	RelayUploadTimeout     = 300 * time.Second
	SubscriptionTimeout    = 10 * time.Second
	ShutdownGracePeriod    = 5 * time.Second
	StatusDeleteDelay      = 2 * time.Second
	SaveForwardInterval    = 1 * time.Second
	StoreSweepSchedule     = "@every 5m"
	ChatEditMinInterval    = 3 * time.Second
	ChatEditCapacity       = int32(20)
	ChatEditWindow         = 66 * time.Second
	PeerCacheTTL           = 24 * time.Hour
	ResolveJobTimeout      = 90 * time.Second
	MetricsShutdownTimeout = 5 * time.Second
)
