package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tastemap/api/internal/middleware"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
	"tastemap/api/internal/service"
)

type venueResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	PhotoKey    *string   `json:"photoKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	// Moderation fields, populated only for admins and the submitter.
	Status           string  `json:"status,omitempty"`
	ResolutionReason *string `json:"resolutionReason,omitempty"`
}

type submitVenueRequest struct {
	Name        string `json:"name" binding:"required"`
	Address     string `json:"address" binding:"required"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h HandlerSet) ListVenues(c *gin.Context) {
	limit, offset := pagination(c)

	venues, err := h.venues.ListApproved(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]venueResponse, 0, len(venues))
	for _, venue := range venues {
		items = append(items, toVenueResponse(venue, false))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// VenueDetail runs behind OptionalAuth: anonymous and member callers see
// approved venues only, admins also see unresolved ones plus moderation
// fields. The submitter may always see their own entry.
func (h HandlerSet) VenueDetail(c *gin.Context) {
	venue, err := h.venues.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrVenueNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	account, authed := middleware.CurrentAccount(c)
	isAdmin := authed && account.Role == models.AccountRoleAdmin
	isSubmitter := authed && account.ID == venue.SubmittedBy

	if venue.Status != models.VenueStatusApproved && !isAdmin && !isSubmitter {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"venue": toVenueResponse(venue, isAdmin || isSubmitter)})
}

func (h HandlerSet) SubmitVenue(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	var req submitVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	venue, err := h.moderation.Submit(c.Request.Context(), account, service.SubmitInput{
		Name:        req.Name,
		Address:     req.Address,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"venue": toVenueResponse(venue, true)})
}

func (h HandlerSet) MyVenues(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	limit, offset := pagination(c)
	venues, err := h.venues.ListBySubmitter(c.Request.Context(), account.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]venueResponse, 0, len(venues))
	for _, venue := range venues {
		items = append(items, toVenueResponse(venue, true))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) UploadVenuePhoto(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo"})
		return
	}
	defer file.Close()

	key, err := h.photos.Attach(c.Request.Context(), account, c.Param("id"), file, header)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVenueNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, service.ErrNotPhotoOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"photoKey": key})
}

func toVenueResponse(venue models.Venue, includeModeration bool) venueResponse {
	resp := venueResponse{
		ID:          venue.ID,
		Name:        venue.Name,
		Address:     venue.Address,
		Category:    venue.Category,
		Description: venue.Description,
		PhotoKey:    venue.PhotoKey,
		CreatedAt:   venue.CreatedAt,
	}
	if includeModeration {
		resp.Status = string(venue.Status)
		resp.ResolutionReason = venue.ResolutionReason
	}
	return resp
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
