package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tastemap/api/internal/config"
	"tastemap/api/internal/models"
	"tastemap/api/internal/security"
)

const testSecret = "guard-test-secret"

var errAccountMissing = errors.New("account missing")

type fakeAccountSource struct {
	accounts map[string]models.Account
}

func (f fakeAccountSource) GetByID(_ context.Context, id string) (models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return models.Account{}, errAccountMissing
	}
	return account, nil
}

func guardConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{CredentialSecret: testSecret},
	}
}

func activeAccount(id string, role models.AccountRole, sessionToken string) models.Account {
	return models.Account{
		ID:           id,
		Role:         role,
		Status:       models.AccountStatusActive,
		SessionToken: &sessionToken,
	}
}

func issueTestCredential(t *testing.T, account models.Account, sessionToken string, ttl time.Duration) string {
	t.Helper()
	credential, err := security.IssueCredential(testSecret, account.ID, string(account.Role), sessionToken, ttl)
	if err != nil {
		t.Fatalf("issue credential: %v", err)
	}
	return credential
}

func newGuardedEngine(cfg *config.AppConfig, source AccountSource, roles ...models.AccountRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/protected", Auth(cfg, source, roles...), func(c *gin.Context) {
		account, _ := CurrentAccount(c)
		c.JSON(http.StatusOK, gin.H{"accountId": account.ID})
	})
	engine.GET("/detail", OptionalAuth(cfg, source), func(c *gin.Context) {
		if account, ok := CurrentAccount(c); ok {
			c.JSON(http.StatusOK, gin.H{"role": string(account.Role)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"role": "anonymous"})
	})
	return engine
}

func doRequest(engine *gin.Engine, path string, credential string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	return rr
}

func forceLogoutFlag(t *testing.T, rr *httptest.ResponseRecorder) bool {
	t.Helper()
	var body struct {
		ForceLogout bool `json:"forceLogout"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body.ForceLogout
}

func TestAuthMissingCredential(t *testing.T) {
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{})

	rr := doRequest(engine, "/protected", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if forceLogoutFlag(t, rr) {
		t.Fatal("missing credential must not force logout")
	}
}

func TestAuthGarbageCredential(t *testing.T) {
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{})

	rr := doRequest(engine, "/protected", "not-a-jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if forceLogoutFlag(t, rr) {
		t.Fatal("unverifiable credential must not force logout")
	}
}

func TestAuthExpiredCredential(t *testing.T) {
	account := activeAccount("acct-1", models.AccountRoleMember, "tok")
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{accounts: map[string]models.Account{account.ID: account}})

	credential := issueTestCredential(t, account, "tok", -time.Minute)
	rr := doRequest(engine, "/protected", credential)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if forceLogoutFlag(t, rr) {
		t.Fatal("expired credential must not force logout")
	}
}

func TestAuthSupersededSession(t *testing.T) {
	// The account now holds t2; the presented credential still snapshots t1.
	account := activeAccount("acct-1", models.AccountRoleMember, "t2")
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{accounts: map[string]models.Account{account.ID: account}})

	stale := issueTestCredential(t, account, "t1", time.Hour)
	rr := doRequest(engine, "/protected", stale)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !forceLogoutFlag(t, rr) {
		t.Fatal("superseded session must force logout")
	}

	current := issueTestCredential(t, account, "t2", time.Hour)
	rr = doRequest(engine, "/protected", current)
	if rr.Code != http.StatusOK {
		t.Fatalf("status with current credential = %d, want 200", rr.Code)
	}
}

func TestAuthRoleRequirement(t *testing.T) {
	member := activeAccount("member-1", models.AccountRoleMember, "tok")
	admin := activeAccount("admin-1", models.AccountRoleAdmin, "tok")
	source := fakeAccountSource{accounts: map[string]models.Account{
		member.ID: member,
		admin.ID:  admin,
	}}
	engine := newGuardedEngine(guardConfig(), source, models.AccountRoleAdmin)

	rr := doRequest(engine, "/protected", issueTestCredential(t, member, "tok", time.Hour))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rr.Code)
	}

	rr = doRequest(engine, "/protected", issueTestCredential(t, admin, "tok", time.Hour))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rr.Code)
	}
}

func TestOptionalAuthDegradesToAnonymous(t *testing.T) {
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{})

	cases := []struct {
		name       string
		credential string
	}{
		{"no credential", ""},
		{"garbage credential", "junk"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(engine, "/detail", tc.credential)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			var body struct {
				Role string `json:"role"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Role != "anonymous" {
				t.Fatalf("role = %q, want anonymous", body.Role)
			}
		})
	}
}

func TestOptionalAuthStaleCredentialHardFails(t *testing.T) {
	// A stale admin credential must not quietly become an anonymous viewer.
	admin := activeAccount("admin-1", models.AccountRoleAdmin, "t2")
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{accounts: map[string]models.Account{admin.ID: admin}})

	rr := doRequest(engine, "/detail", issueTestCredential(t, admin, "t1", time.Hour))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !forceLogoutFlag(t, rr) {
		t.Fatal("stale credential on optional route must force logout")
	}
}

func TestOptionalAuthValidCredential(t *testing.T) {
	admin := activeAccount("admin-1", models.AccountRoleAdmin, "tok")
	engine := newGuardedEngine(guardConfig(), fakeAccountSource{accounts: map[string]models.Account{admin.ID: admin}})

	rr := doRequest(engine, "/detail", issueTestCredential(t, admin, "tok", time.Hour))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Role != "admin" {
		t.Fatalf("role = %q, want admin", body.Role)
	}
}
