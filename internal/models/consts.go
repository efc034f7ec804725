package models

const (
	STATUS_UP         = "UP"
	STATUS_DEGRADED   = "DEGRADED"
	STATUS_DOWN       = "DOWN"
	HEALTH_ISSUE_NONE = "None reported"
	//
	AZ_BLOB_CLIENT_NA = "error: client not available, check config"
	S3_CLIENT_NA      = "error: S3 client not available, check config"
	//
	SERVICE_BUS  = "Azure Service Bus"
	REDIS_LOCKER = "Redis Locker"
	//
	INGEST_STORAGE_HEALTH_PREFIX  = "Ingest storage"
	ARCHIVE_STORAGE_HEALTH_PREFIX = "Archive storage"
) // .const
