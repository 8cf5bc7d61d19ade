package config

// Arena defaults.
const (
	DefaultArenaShards               = 4
	DefaultArenaHibernationThreshold = 4096
	DefaultArenaSnapshotDir          = ""
)

// Workload defaults.
const (
	DefaultWorkloadKeys        = 100_000
	DefaultWorkloadKeySpace    = 10_000
	DefaultWorkloadEraseRatio  = 0.3
	DefaultWorkloadSeed        = 1
	DefaultWorkloadMaps        = 8
	DefaultWorkloadVerifyEvery = 0
)

// Logging defaults.
const (
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"
)

// Telemetry defaults.
const (
	DefaultTelemetryServiceName = "embedtree"
	DefaultTelemetrySampleRatio = 0.0
)
