package models

import "time"

type AccountRole string

const (
	AccountRoleMember AccountRole = "member"
	AccountRoleAdmin  AccountRole = "admin"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account carries the server-side session token: the single opaque value that
// identifies the one currently valid login for this account. It is rewritten
// on every successful login, which supersedes all credentials issued before.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Role         AccountRole
	Status       AccountStatus
	SessionToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
