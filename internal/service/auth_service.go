package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tastemap/api/internal/config"
	"tastemap/api/internal/ids"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
	"tastemap/api/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoleMismatch       = errors.New("wrong login entry point for role")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrEmailTaken         = errors.New("email already registered")
)

// AccountStore is the persistence surface the authenticator needs. The
// session token has exactly one write path: SetSessionToken, a single UPDATE
// with last-writer-wins semantics.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	SetSessionToken(ctx context.Context, id string, token *string) error
	UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error
}

type AuthService struct {
	accounts AccountStore
	throttle *redis.Client
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(accounts AccountStore, throttle *redis.Client, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		throttle: throttle,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	Credential string
	ExpiresAt  time.Time
	Account    models.Account
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password required")
	}

	if _, err := s.accounts.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	account := models.Account{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		Role:         models.AccountRoleMember,
		Status:       models.AccountStatusActive,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return AuthResult{}, err
	}

	return s.issue(ctx, account)
}

// Authenticate verifies the secret and rotates the account's session token.
// The rotation is the whole point: every credential issued before this call
// now carries a stale snapshot and is rejected on its next use, which is how
// "one live session per account" holds across concurrent logins.
//
// entry is the login surface the caller used; an account of a different role
// is turned away with ErrRoleMismatch even when the password is right.
func (s *AuthService) Authenticate(ctx context.Context, entry models.AccountRole, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if err := s.checkThrottle(ctx, email); err != nil {
		return AuthResult{}, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.recordFailure(ctx, email)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if account.Status != models.AccountStatusActive {
		return AuthResult{}, ErrAccountSuspended
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		s.recordFailure(ctx, email)
		return AuthResult{}, ErrInvalidCredentials
	}

	if account.Role != entry {
		return AuthResult{}, ErrRoleMismatch
	}

	s.clearThrottle(ctx, email)

	return s.issue(ctx, account)
}

func (s *AuthService) issue(ctx context.Context, account models.Account) (AuthResult, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.accounts.SetSessionToken(ctx, account.ID, &token); err != nil {
		return AuthResult{}, fmt.Errorf("rotate session token: %w", err)
	}
	account.SessionToken = &token

	ttl := s.cfg.Security.MemberCredentialTTL
	if account.Role == models.AccountRoleAdmin {
		ttl = s.cfg.Security.AdminCredentialTTL
	}

	expiresAt := time.Now().Add(ttl)
	credential, err := security.IssueCredential(
		s.cfg.Security.CredentialSecret,
		account.ID,
		string(account.Role),
		token,
		ttl,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Credential: credential,
		ExpiresAt:  expiresAt,
		Account:    account,
	}, nil
}

// Logout acknowledges regardless of session state. Clearing the stored token
// is opt-in; by default a still-unexpired credential keeps working until the
// next login rotates it.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if !s.cfg.Security.ClearSessionOnLogout {
		return nil
	}

	if err := s.accounts.SetSessionToken(ctx, accountID, nil); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil
		}
		s.log.Warn().Err(err).Str("account_id", accountID).Msg("clear session token failed")
	}
	return nil
}

// SetAccountStatus suspends or reinstates an account. Suspension also blanks
// the stored session token, so a live credential dies on its next request
// instead of riding out its TTL.
func (s *AuthService) SetAccountStatus(ctx context.Context, actor models.Account, accountID string, status models.AccountStatus) error {
	if actor.Role != models.AccountRoleAdmin {
		return ErrForbidden
	}
	if status != models.AccountStatusActive && status != models.AccountStatusSuspended {
		return fmt.Errorf("invalid account status %q", status)
	}

	if err := s.accounts.UpdateStatus(ctx, accountID, status); err != nil {
		return err
	}

	if status == models.AccountStatusSuspended {
		if err := s.accounts.SetSessionToken(ctx, accountID, nil); err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("revoke session on suspend failed")
		}
	}
	return nil
}

func (s *AuthService) throttleKey(email string) string {
	return fmt.Sprintf("login:fail:%s", email)
}

// The throttle fails open: an unreachable redis must not lock everyone out.
func (s *AuthService) checkThrottle(ctx context.Context, email string) error {
	if s.throttle == nil {
		return nil
	}

	count, err := s.throttle.Get(ctx, s.throttleKey(email)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("login throttle read failed")
		return nil
	}
	if count >= s.cfg.Security.LoginMaxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}

	key := s.throttleKey(email)
	pipe := s.throttle.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.Security.LoginAttemptWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("login throttle record failed")
	}
}

func (s *AuthService) clearThrottle(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Del(ctx, s.throttleKey(email)).Err(); err != nil {
		s.log.Warn().Err(err).Msg("login throttle clear failed")
	}
}
