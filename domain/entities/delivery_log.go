package entities

import "time"

// DeliveryStatus is the state of a single recipient's email
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// DeliveryLog records the outcome of sending a run's email to one recipient
type DeliveryLog struct {
	ID                int64          `db:"id"`
	RunID             string         `db:"run_id"`
	DigestID          string         `db:"digest_id"`
	Recipient         string         `db:"recipient"`
	Status            DeliveryStatus `db:"status"`
	ProviderMessageID *string        `db:"provider_message_id"`
	Error             *string        `db:"error"`
	CreatedAt         time.Time      `db:"created_at"`
	SentAt            *time.Time     `db:"sent_at"`
}

// SendResult tallies a batch send
type SendResult struct {
	Sent   int
	Failed int
}
