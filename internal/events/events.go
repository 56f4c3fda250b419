package events

import (
	"time"

	"tastemap/api/internal/models"
)

// Event types pushed over the admin realtime channel. Delivery is at-most-once
// to channels connected at publish time; there is no replay for late joiners.
const (
	TypeSubmissionCreated  = "new_proposal"
	TypeSubmissionResolved = "submission_resolved"
	TypePendingCount       = "refresh_pending_count"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// VenueSummary is the minimal view a client needs to render a new submission
// without a follow-up fetch.
type VenueSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Category    string    `json:"category"`
	SubmittedBy string    `json:"submittedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ResolvedPayload struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type PendingCountPayload struct {
	Count int `json:"count"`
}

func SubmissionCreated(v models.Venue) Event {
	return Event{
		Type: TypeSubmissionCreated,
		Payload: VenueSummary{
			ID:          v.ID,
			Name:        v.Name,
			Address:     v.Address,
			Category:    v.Category,
			SubmittedBy: v.SubmittedBy,
			CreatedAt:   v.CreatedAt,
		},
	}
}

func SubmissionResolved(id string, outcome models.VenueStatus, reason string) Event {
	return Event{
		Type: TypeSubmissionResolved,
		Payload: ResolvedPayload{
			ID:      id,
			Outcome: string(outcome),
			Reason:  reason,
		},
	}
}

func PendingCount(count int) Event {
	return Event{
		Type:    TypePendingCount,
		Payload: PendingCountPayload{Count: count},
	}
}
