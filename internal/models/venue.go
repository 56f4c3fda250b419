package models

import "time"

type VenueStatus string

const (
	VenueStatusPending  VenueStatus = "pending"
	VenueStatusApproved VenueStatus = "approved"
	VenueStatusRejected VenueStatus = "rejected"
)

// Venue is a submitted food venue. User submissions start in pending and move
// exactly once to approved or rejected; admin submissions are created already
// approved and never pass through the pending set.
type Venue struct {
	ID               string
	Name             string
	Address          string
	Category         string
	Description      string
	PhotoKey         *string
	SubmittedBy      string
	Status           VenueStatus
	ResolutionReason *string
	ResolvedBy       *string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
