package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tastemap/api/internal/events"
	"tastemap/api/internal/hub"
	"tastemap/api/internal/ids"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
)

var (
	ErrForbidden = errors.New("admin role required")

	// ErrInvalidTransition reports a venue that is not (or no longer) in the
	// pending state. A resolver that loses a race to another admin sees this,
	// never a silent overwrite.
	ErrInvalidTransition = errors.New("venue is not pending")
)

// VenueStore is the persistence surface of the moderation pipeline.
// ResolvePending must check-and-update the status in one atomic step.
type VenueStore interface {
	Create(ctx context.Context, venue models.Venue) error
	GetByID(ctx context.Context, id string) (models.Venue, error)
	ResolvePending(ctx context.Context, id string, status models.VenueStatus, reason *string, resolvedBy string) (models.Venue, error)
	Delete(ctx context.Context, id string) (models.VenueStatus, error)
	CountPending(ctx context.Context) (int, error)
}

// Publisher fans an event out to a broadcast group. Implementations are
// best-effort and must never fail the caller.
type Publisher interface {
	Publish(group string, evt events.Event)
}

type ModerationService struct {
	venues VenueStore
	notify Publisher
	log    zerolog.Logger
}

func NewModerationService(venues VenueStore, notify Publisher, log zerolog.Logger) *ModerationService {
	return &ModerationService{
		venues: venues,
		notify: notify,
		log:    log,
	}
}

type SubmitInput struct {
	Name        string
	Address     string
	Category    string
	Description string
}

// Submit creates a venue proposal. Member submissions start pending and are
// announced to connected admins; admin submissions are created approved
// outright and produce no moderation traffic.
func (s *ModerationService) Submit(ctx context.Context, submitter models.Account, input SubmitInput) (models.Venue, error) {
	if input.Name == "" || input.Address == "" {
		return models.Venue{}, fmt.Errorf("name and address required")
	}

	venue := models.Venue{
		ID:          ids.New(),
		Name:        input.Name,
		Address:     input.Address,
		Category:    input.Category,
		Description: input.Description,
		SubmittedBy: submitter.ID,
		Status:      models.VenueStatusPending,
	}
	if submitter.Role == models.AccountRoleAdmin {
		venue.Status = models.VenueStatusApproved
	}

	if err := s.venues.Create(ctx, venue); err != nil {
		return models.Venue{}, err
	}

	if venue.Status == models.VenueStatusPending {
		s.notify.Publish(hub.AdminRoom, events.SubmissionCreated(venue))
		s.publishPendingCount(ctx)
	}

	return venue, nil
}

// Resolve moves a pending venue to approved or rejected. The status check
// rides inside the store's compare-and-set update, so of two concurrent
// resolvers exactly one wins and the other gets ErrInvalidTransition.
//
// The resolution event is always published before the recomputed pending
// count, so subscribers observe cause before effect.
func (s *ModerationService) Resolve(ctx context.Context, admin models.Account, id string, outcome models.VenueStatus, reason string) (models.Venue, error) {
	if admin.Role != models.AccountRoleAdmin {
		return models.Venue{}, ErrForbidden
	}
	if outcome != models.VenueStatusApproved && outcome != models.VenueStatusRejected {
		return models.Venue{}, fmt.Errorf("invalid outcome %q", outcome)
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	venue, err := s.venues.ResolvePending(ctx, id, outcome, reasonPtr, admin.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return models.Venue{}, ErrInvalidTransition
		}
		return models.Venue{}, err
	}

	s.notify.Publish(hub.AdminRoom, events.SubmissionResolved(venue.ID, outcome, reason))
	s.publishPendingCount(ctx)

	return venue, nil
}

// Remove deletes a venue outright. Deleting a still-pending venue counts as a
// resolution for the pending set, so the count is re-broadcast.
func (s *ModerationService) Remove(ctx context.Context, admin models.Account, id string) error {
	if admin.Role != models.AccountRoleAdmin {
		return ErrForbidden
	}

	status, err := s.venues.Delete(ctx, id)
	if err != nil {
		return err
	}

	if status == models.VenueStatusPending {
		s.publishPendingCount(ctx)
	}
	return nil
}

// PendingCount recomputes the number of unresolved submissions from the
// store on every call. Fresh admin connections fetch this directly; events
// are never replayed for them.
func (s *ModerationService) PendingCount(ctx context.Context) (int, error) {
	return s.venues.CountPending(ctx)
}

func (s *ModerationService) publishPendingCount(ctx context.Context) {
	count, err := s.venues.CountPending(ctx)
	if err != nil {
		// The triggering operation already succeeded; a failed recount only
		// costs connected admins one refresh.
		s.log.Error().Err(err).Msg("recompute pending count failed")
		return
	}
	s.notify.Publish(hub.AdminRoom, events.PendingCount(count))
}
