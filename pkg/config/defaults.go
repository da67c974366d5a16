package config

import "time"

const (
	DefaultEnvFile = ".env"

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "checkpost"
	DefaultMongoCollection   = "checkpost_stops"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultMongoOpTimeout    = 15 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 60 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 32 * 1024 * 1024 // 32MB, CSV uploads
	DefaultMaxIngestRows  = 200000
	DefaultPreviewRows    = 20

	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultRecentStopsLimit   = 200
	DefaultFilteredStopsLimit = 1000
	DefaultReportRowLimit     = 500

	DefaultRepeatVehicleWindow   = 30 * 24 * time.Hour
	DefaultRepeatVehicleMinStops = 2
	DefaultRepeatVehicleLimit    = 50

	DefaultKafkaEnabled = false
)
