package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tastemap/api/internal/middleware"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
	"tastemap/api/internal/service"
)

type resolveRequest struct {
	Reason string `json:"reason"`
}

func (h HandlerSet) AdminListPending(c *gin.Context) {
	limit, offset := pagination(c)

	venues, err := h.venues.ListPending(c.Request.Context(), limit, offset)
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

func (h HandlerSet) AdminPendingCount(c *gin.Context) {
	count, err := h.moderation.PendingCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h HandlerSet) AdminApprove(c *gin.Context) {
	h.resolve(c, models.VenueStatusApproved)
}

func (h HandlerSet) AdminReject(c *gin.Context) {
	h.resolve(c, models.VenueStatusRejected)
}

func (h HandlerSet) resolve(c *gin.Context, outcome models.VenueStatus) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	// The reason is optional and so is the body itself.
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Reason = ""
	}

	venue, err := h.moderation.Resolve(c.Request.Context(), account, c.Param("id"), outcome, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVenueNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"venue": toVenueResponse(venue, true)})
}

func (h HandlerSet) AdminSuspendAccount(c *gin.Context) {
	h.setAccountStatus(c, models.AccountStatusSuspended)
}

func (h HandlerSet) AdminReinstateAccount(c *gin.Context) {
	h.setAccountStatus(c, models.AccountStatusActive)
}

func (h HandlerSet) setAccountStatus(c *gin.Context, status models.AccountStatus) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	if err := h.auth.SetAccountStatus(c.Request.Context(), account, c.Param("id"), status); err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) AdminRemove(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	if err := h.moderation.Remove(c.Request.Context(), account, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, repository.ErrVenueNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
