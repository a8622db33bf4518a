package models

const (
	// DefaultDeadTimeSeconds is the window after initiation during which no
	// status polling happens; the provider has no status row yet.
	DefaultDeadTimeSeconds = 4

	// DefaultPollIntervalSeconds between automatic status queries.
	DefaultPollIntervalSeconds = 3

	// DefaultManualEntryAfter is the attempt count after which manual
	// transaction-code entry is offered.
	DefaultManualEntryAfter = 2

	// DefaultBypassAfter is the attempt count after which the demo bypass
	// becomes available (when enabled in config).
	DefaultBypassAfter = 5

	// DefaultWarningWindowSeconds is how long a transient manual-entry
	// warning stays visible before auto-clearing.
	DefaultWarningWindowSeconds = 3

	// DefaultRecommendCacheSeconds for cached mood recommendations.
	DefaultRecommendCacheSeconds = 30 * 60

	// DefaultCountryCode prepended during phone normalization.
	DefaultCountryCode = "254"

	// ReferencePrefix marks client-generated payment references.
	ReferencePrefix = "REC-"

	// DemoCodePrefix tags synthetic transaction codes produced by the
	// bypass path so they are distinguishable from provider codes.
	DemoCodePrefix = "MP-DEMO-"
)
