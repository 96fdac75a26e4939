package models

import "time"

// Outbox topics
const (
	TopicTransactionCompleted   = "transaction.completed"
	TopicTransactionFailed      = "transaction.failed"
	TopicTransactionRefunded    = "transaction.refunded"
	TopicReconciliationRequired = "transaction.reconciliation_required"
	TopicKYCLevelChanged        = "kyc.level_changed"
)

// OutboxMessage is a notification written in the same database transaction
// as the state change it describes and published later, at least once.
type OutboxMessage struct {
	ID            uint       `gorm:"primarykey"`
	Topic         string     `gorm:"type:varchar(64);index;not null"`
	AggregateID   string     `gorm:"type:varchar(64);index"`
	Payload       JSON       `gorm:"type:jsonb"`
	Attempts      int        `gorm:"not null;default:0"`
	NextAttemptAt time.Time  `gorm:"index"`
	PublishedAt   *time.Time `gorm:"index"`
	DeadAt        *time.Time
	LastError     string
	CreatedAt     time.Time
}
