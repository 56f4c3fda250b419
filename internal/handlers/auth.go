package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tastemap/api/internal/middleware"
	"tastemap/api/internal/models"
	"tastemap/api/internal/service"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Credential string          `json:"credential"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Account    accountResponse `json:"account"`
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func (h HandlerSet) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sendAuthResponse(c, result)
}

// MemberLogin and AdminLogin are distinct entry points on purpose: an account
// logging in through the wrong surface is refused even with a valid password.
func (h HandlerSet) MemberLogin(c *gin.Context) {
	h.login(c, models.AccountRoleMember)
}

func (h HandlerSet) AdminLogin(c *gin.Context) {
	h.login(c, models.AccountRoleAdmin)
}

func (h HandlerSet) login(c *gin.Context, entry models.AccountRole) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.Authenticate(c.Request.Context(), entry, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		case errors.Is(err, service.ErrRoleMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "role_mismatch"})
		case errors.Is(err, service.ErrAccountSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": "account_suspended"})
		case errors.Is(err, service.ErrTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		}
		return
	}

	sendAuthResponse(c, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	_ = h.auth.Logout(c.Request.Context(), account.ID)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "forceLogout": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": toAccountResponse(account)})
}

func sendAuthResponse(c *gin.Context, result service.AuthResult) {
	c.JSON(http.StatusOK, authResponse{
		Credential: result.Credential,
		ExpiresAt:  result.ExpiresAt,
		Account:    toAccountResponse(result.Account),
	})
}

func toAccountResponse(account models.Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        string(account.Role),
	}
}
