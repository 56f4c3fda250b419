package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tastemap/api/internal/config"
	"tastemap/api/internal/hub"
	"tastemap/api/internal/middleware"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
	"tastemap/api/internal/service"
	"tastemap/api/internal/storage"
)

// venueDirectory is the read surface the venue handlers consume.
type venueDirectory interface {
	GetByID(ctx context.Context, id string) (models.Venue, error)
	ListApproved(ctx context.Context, limit, offset int) ([]models.Venue, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.Venue, error)
	ListBySubmitter(ctx context.Context, accountID string, limit, offset int) ([]models.Venue, error)
}

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	db         *pgxpool.Pool
	cache      *redis.Client
	notify     *hub.Hub
	accounts   middleware.AccountSource
	venues     venueDirectory
	auth       *service.AuthService
	moderation *service.ModerationService
	photos     *service.PhotoService
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, notify *hub.Hub, cfg *config.AppConfig) HandlerSet {
	accountRepo := repository.NewAccountRepository(db)
	venueRepo := repository.NewVenueRepository(db)
	auth := service.NewAuthService(accountRepo, cache, cfg, log)
	moderation := service.NewModerationService(venueRepo, notify, log)
	photos := service.NewPhotoService(venueRepo, store, log)

	return HandlerSet{
		log:        log,
		cfg:        cfg,
		db:         db,
		cache:      cache,
		notify:     notify,
		accounts:   accountRepo,
		venues:     venueRepo,
		auth:       auth,
		moderation: moderation,
		photos:     photos,
	}
}

// Moderation exposes the moderation service for wiring outside the HTTP
// surface, such as the job scheduler.
func (h HandlerSet) Moderation() *service.ModerationService {
	return h.moderation
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterAccount)
		auth.POST("/login", h.MemberLogin)
		auth.POST("/admin/login", h.AdminLogin)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.accounts))
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
	}

	venues := v1.Group("/venues")
	venues.GET("", h.ListVenues)
	venues.GET("/:id", middleware.OptionalAuth(h.cfg, h.accounts), h.VenueDetail)

	member := v1.Group("")
	member.Use(middleware.Auth(h.cfg, h.accounts))
	member.POST("/venues", h.SubmitVenue)
	member.POST("/venues/:id/photo", h.UploadVenuePhoto)
	member.GET("/me/venues", h.MyVenues)

	admin := v1.Group("/admin")
	admin.Use(middleware.Auth(h.cfg, h.accounts, models.AccountRoleAdmin))
	admin.GET("/venues/pending", h.AdminListPending)
	admin.GET("/venues/pending/count", h.AdminPendingCount)
	admin.POST("/venues/:id/approve", h.AdminApprove)
	admin.POST("/venues/:id/reject", h.AdminReject)
	admin.DELETE("/venues/:id", h.AdminRemove)
	admin.POST("/accounts/:id/suspend", h.AdminSuspendAccount)
	admin.POST("/accounts/:id/reinstate", h.AdminReinstateAccount)

	v1.GET("/ws", h.Realtime)
}
