package config

const (
	EnvFile = "CHECKPOST_ENV_FILE"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoCollection   = "MONGO_STOPS_COLLECTION"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvMongoOpTimeout    = "MONGO_OP_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvIngestSigningSecret = "INGEST_SIGNING_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"
	EnvMaxIngestRows  = "MAX_INGEST_ROWS"
	EnvPreviewRows    = "PREVIEW_ROWS"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvRecentStopsLimit   = "RECENT_STOPS_LIMIT"
	EnvFilteredStopsLimit = "FILTERED_STOPS_LIMIT"
	EnvReportRowLimit     = "REPORT_ROW_LIMIT"

	EnvRepeatVehicleWindow   = "REPEAT_VEHICLE_WINDOW"
	EnvRepeatVehicleMinStops = "REPEAT_VEHICLE_MIN_STOPS"
	EnvRepeatVehicleLimit    = "REPEAT_VEHICLE_LIMIT"

	EnvKafkaEnabled = "KAFKA_ENABLED"
)
