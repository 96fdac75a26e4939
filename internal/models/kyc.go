package models

import "time"

type KYCStatus string

const (
	KYCStatusNone        KYCStatus = "none"
	KYCStatusPending     KYCStatus = "pending"
	KYCStatusProvisional KYCStatus = "provisional"
	KYCStatusApproved    KYCStatus = "approved"
	KYCStatusRejected    KYCStatus = "rejected"
)

// KYCProfile records a user's verification level. Level gates spend limits.
type KYCProfile struct {
	ID           uint       `gorm:"primarykey" json:"-"`
	UserID       uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Level        int        `gorm:"not null;default:0" json:"level"`
	Status       KYCStatus  `gorm:"type:varchar(20);not null;default:'none'" json:"status"`
	Provider     string     `gorm:"type:varchar(32)" json:"provider,omitempty"`
	Reference    string     `gorm:"type:varchar(128)" json:"reference,omitempty"`
	LastCode     string     `gorm:"type:varchar(64)" json:"last_code,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	TableVersion string     `gorm:"type:varchar(32)" json:"table_version,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
