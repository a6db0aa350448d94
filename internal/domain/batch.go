package domain

import "time"

type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusExpired  BatchStatus = "expired"
	BatchStatusDepleted BatchStatus = "depleted"
)

// Batch represents a donated lot of a single medicine type with a common expiry.
type Batch struct {
	ID           string
	MedicineType string
	DonorID      string
	Location     string
	Quantity     int
	Reserved     int
	Distributed  int
	Status       BatchStatus
	ExpiresAt    time.Time
	CreatedAt    time.Time
	ArchivedAt   *time.Time
}

// Available is the quantity still open for matching.
// Invariant: Reserved + Distributed <= Quantity, so Available >= 0.
func (b Batch) Available() int {
	return b.Quantity - b.Reserved - b.Distributed
}

// ExpiredAt reports whether the batch is past its safe-use window at now,
// regardless of whether the sweep has transitioned its status yet.
func (b Batch) ExpiredAt(now time.Time) bool {
	return b.Status == BatchStatusExpired || !b.ExpiresAt.After(now)
}
