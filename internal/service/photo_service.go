package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"tastemap/api/internal/ids"
	"tastemap/api/internal/models"
	"tastemap/api/internal/storage"
)

var ErrNotPhotoOwner = errors.New("only the submitter or an admin may attach a photo")

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type PhotoVenueStore interface {
	GetByID(ctx context.Context, id string) (models.Venue, error)
	SetPhotoKey(ctx context.Context, id string, key string) error
}

// PhotoService passes venue photos straight through to the object store and
// records the object key on the venue row.
type PhotoService struct {
	venues PhotoVenueStore
	store  *storage.ObjectStore
	log    zerolog.Logger
}

func NewPhotoService(venues PhotoVenueStore, store *storage.ObjectStore, log zerolog.Logger) *PhotoService {
	return &PhotoService{
		venues: venues,
		store:  store,
		log:    log,
	}
}

func (s *PhotoService) Attach(ctx context.Context, actor models.Account, venueID string, file multipart.File, header *multipart.FileHeader) (string, error) {
	if file == nil || header == nil {
		return "", errors.New("invalid file payload")
	}

	venue, err := s.venues.GetByID(ctx, venueID)
	if err != nil {
		return "", err
	}

	if venue.SubmittedBy != actor.ID && actor.Role != models.AccountRoleAdmin {
		return "", ErrNotPhotoOwner
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedPhotoTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported photo type %q", contentType)
	}

	key := path.Join("venues", venue.ID, ids.New()+ext)
	if err := s.store.PutPhoto(ctx, key, file, header.Size, contentType); err != nil {
		return "", err
	}

	if err := s.venues.SetPhotoKey(ctx, venue.ID, key); err != nil {
		// Don't leave an unreferenced object behind.
		if rmErr := s.store.RemovePhoto(ctx, key); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("key", key).Msg("orphan photo cleanup failed")
		}
		return "", err
	}

	return key, nil
}
