package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims is the signed session credential. The session token is a
// snapshot taken at issuance: the claim is only authoritative while it still
// matches the account's stored token, which a later login rewrites. Verifiers
// must cross-check it against the account record, not trust it.
type CredentialClaims struct {
	AccountID    string `json:"aid"`
	Role         string `json:"role"`
	SessionToken string `json:"stok"`
	jwt.RegisteredClaims
}

func IssueCredential(secret string, accountID string, role string, sessionToken string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CredentialClaims{
		AccountID:    accountID,
		Role:         role,
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   accountID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

func ParseCredential(tokenStr string, secret string) (*CredentialClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CredentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CredentialClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid credential")
}
