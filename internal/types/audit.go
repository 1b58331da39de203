package types

// AuditEventType names the kind of billing event recorded in the audit trail
type AuditEventType string

const (
	AuditEventUpgradeImmediate        AuditEventType = "upgrade_immediate"
	AuditEventDowngradeScheduled      AuditEventType = "downgrade_scheduled"
	AuditEventScheduledChangeCanceled AuditEventType = "scheduled_change_canceled"
	AuditEventCreated                 AuditEventType = "created"
	AuditEventCanceled                AuditEventType = "canceled"
)

// AuditStore selects the audit repository backend
type AuditStore string

const (
	AuditStorePostgres AuditStore = "postgres"
	AuditStoreDynamoDB AuditStore = "dynamodb"
)
