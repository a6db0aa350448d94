package domain

import "time"

type RequestStatus string

const (
	RequestStatusOpen             RequestStatus = "open"
	RequestStatusPartiallyMatched RequestStatus = "partially_matched"
	RequestStatusFulfilled        RequestStatus = "fulfilled"
	RequestStatusExpired          RequestStatus = "expired"
	RequestStatusCancelled        RequestStatus = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank orders priorities for matching; higher matches first.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// ParsePriority validates a wire-level priority value.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if _, ok := priorityRank[p]; !ok {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// Request represents an NGO's standing need for a medicine type.
type Request struct {
	ID           string
	NGOID        string
	MedicineType string
	Quantity     int
	Fulfilled    int
	Priority     Priority
	Status       RequestStatus
	Deadline     time.Time
	CreatedAt    time.Time

	// Pending is the quantity currently held or confirmed by active
	// reservations against this request. Populated only on matching
	// snapshots; zero elsewhere.
	Pending int
}

// Remaining is the quantity still needed, net of fulfilled and pending holds.
func (r Request) Remaining() int {
	rem := r.Quantity - r.Fulfilled - r.Pending
	if rem < 0 {
		return 0
	}
	return rem
}

// Terminal reports whether the request can no longer change.
func (r Request) Terminal() bool {
	switch r.Status {
	case RequestStatusFulfilled, RequestStatusExpired, RequestStatusCancelled:
		return true
	}
	return false
}
