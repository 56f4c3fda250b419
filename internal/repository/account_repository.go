package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tastemap/api/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO accounts (
			id, email, password_hash, display_name, role, status, session_token, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.Role,
		account.Status,
		account.SessionToken,
	)
	return err
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	const query = `
		SELECT id, email, password_hash, display_name, role, status, session_token, created_at, updated_at
		FROM accounts WHERE email = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (models.Account, error) {
	const query = `
		SELECT id, email, password_hash, display_name, role, status, session_token, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) FindBySessionToken(ctx context.Context, token string) (models.Account, error) {
	const query = `
		SELECT id, email, password_hash, display_name, role, status, session_token, created_at, updated_at
		FROM accounts WHERE session_token = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, token))
}

// SetSessionToken is the single write path for the session token. One UPDATE,
// last writer wins: whichever concurrent login lands last owns the only valid
// session.
func (r *AccountRepository) SetSessionToken(ctx context.Context, id string, token *string) error {
	const query = `
		UPDATE accounts SET session_token = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	const query = `
		UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) scanOne(row pgx.Row) (models.Account, error) {
	var account models.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.DisplayName,
		&account.Role,
		&account.Status,
		&account.SessionToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}
