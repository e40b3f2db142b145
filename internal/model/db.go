package model

import "time"

// WebhookEventRecord logs every processed notification. It is a fast path
// for exact redeliveries and an audit trail; settlement correctness never
// depends on it, so losing this table loses no state.
type WebhookEventRecord struct {
	EventID     string `gorm:"primaryKey;size:128;not null"` // processor event id
	EventType   string `gorm:"size:64;index"`
	ChargeID    string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// Transfer attempt statuses.
const (
	TransferStatusCreated = "CREATED"
	TransferStatusSkipped = "SKIPPED"
	TransferStatusFailed  = "FAILED"
)

// TransferAttempt records the outcome of one per-destination settlement
// attempt. Failed rows are the operator's remediation queue: a fund-transfer
// failure is never surfaced to the buyer and never retried via redelivery.
type TransferAttempt struct {
	ID            uint   `gorm:"primaryKey"`
	ChargeID      string `gorm:"size:64;index;not null"`
	Destination   string `gorm:"size:64;index;not null"` // connected account id
	Amount        int64  `gorm:"not null"`               // minor units
	Currency      string `gorm:"size:8;not null"`
	TransferGroup string `gorm:"size:128;index"`
	TransferID    string `gorm:"size:64"`
	Status        string `gorm:"size:16;index;not null"` // CREATED, SKIPPED, FAILED
	LastError     string `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
