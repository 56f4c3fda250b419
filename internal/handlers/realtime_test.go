package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"tastemap/api/internal/config"
	"tastemap/api/internal/events"
	"tastemap/api/internal/hub"
	"tastemap/api/internal/models"
	"tastemap/api/internal/repository"
	"tastemap/api/internal/security"
	"tastemap/api/internal/service"
)

const rtTestSecret = "realtime-test-secret"

type testFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type memoryAccountSource struct {
	mu       sync.Mutex
	accounts map[string]models.Account
}

func (s *memoryAccountSource) GetByID(_ context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return account, nil
}

type memoryVenueStore struct {
	mu     sync.Mutex
	venues map[string]models.Venue
}

func newMemoryVenueStore() *memoryVenueStore {
	return &memoryVenueStore{venues: make(map[string]models.Venue)}
}

func (s *memoryVenueStore) Create(_ context.Context, venue models.Venue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.venues[venue.ID] = venue
	return nil
}

func (s *memoryVenueStore) GetByID(_ context.Context, id string) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue, ok := s.venues[id]
	if !ok {
		return models.Venue{}, repository.ErrVenueNotFound
	}
	return venue, nil
}

func (s *memoryVenueStore) ResolvePending(_ context.Context, id string, status models.VenueStatus, reason *string, resolvedBy string) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue, ok := s.venues[id]
	if !ok {
		return models.Venue{}, repository.ErrVenueNotFound
	}
	if venue.Status != models.VenueStatusPending {
		return models.Venue{}, repository.ErrNotPending
	}
	venue.Status = status
	venue.ResolutionReason = reason
	venue.ResolvedBy = &resolvedBy
	s.venues[id] = venue
	return venue, nil
}

func (s *memoryVenueStore) Delete(_ context.Context, id string) (models.VenueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue, ok := s.venues[id]
	if !ok {
		return "", repository.ErrVenueNotFound
	}
	delete(s.venues, id)
	return venue.Status, nil
}

func (s *memoryVenueStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, venue := range s.venues {
		if venue.Status == models.VenueStatusPending {
			count++
		}
	}
	return count, nil
}

type realtimeFixture struct {
	srv        *httptest.Server
	notify     *hub.Hub
	moderation *service.ModerationService
	adminCred  string
	memberCred string
	member     models.Account
}

func newRealtimeFixture(t *testing.T) *realtimeFixture {
	t.Helper()

	adminToken := "admin-session-token"
	memberToken := "member-session-token"
	admin := models.Account{
		ID:           "admin-1",
		Role:         models.AccountRoleAdmin,
		Status:       models.AccountStatusActive,
		SessionToken: &adminToken,
	}
	member := models.Account{
		ID:           "member-1",
		Role:         models.AccountRoleMember,
		Status:       models.AccountStatusActive,
		SessionToken: &memberToken,
	}

	cfg := &config.AppConfig{
		Security: config.SecurityConfig{CredentialSecret: rtTestSecret},
		Realtime: config.RealtimeConfig{SendQueueSize: 8},
	}

	accounts := &memoryAccountSource{accounts: map[string]models.Account{
		admin.ID:  admin,
		member.ID: member,
	}}
	venueStore := newMemoryVenueStore()
	notify := hub.New(zerolog.Nop())
	moderation := service.NewModerationService(venueStore, notify, zerolog.Nop())

	handlerSet := HandlerSet{
		log:        zerolog.Nop(),
		cfg:        cfg,
		notify:     notify,
		accounts:   accounts,
		moderation: moderation,
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handlerSet.Register(engine.Group("/api"))

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	adminCred, err := security.IssueCredential(rtTestSecret, admin.ID, string(admin.Role), adminToken, time.Hour)
	if err != nil {
		t.Fatalf("issue admin credential: %v", err)
	}
	memberCred, err := security.IssueCredential(rtTestSecret, member.ID, string(member.Role), memberToken, time.Hour)
	if err != nil {
		t.Fatalf("issue member credential: %v", err)
	}

	return &realtimeFixture{
		srv:        srv,
		notify:     notify,
		moderation: moderation,
		adminCred:  adminCred,
		memberCred: memberCred,
		member:     member,
	}
}

func (f *realtimeFixture) dial(t *testing.T, credential string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/ws?token=" + credential
	conn, err := websocket.Dial(wsURL, "", f.srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func (f *realtimeFixture) dialErr(credential string) error {
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/ws?token=" + credential
	conn, err := websocket.Dial(wsURL, "", f.srv.URL)
	if conn != nil {
		_ = conn.Close()
	}
	return err
}

func sendJoin(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(map[string]string{"type": msgJoinAdminRoom}); err != nil {
		t.Fatalf("send join: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame testFrame
	if err := json.NewDecoder(conn).Decode(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	var frame testFrame
	if err := json.NewDecoder(conn).Decode(&frame); err == nil {
		t.Fatalf("unexpected frame %q", frame.Type)
	}
}

func decodeCount(t *testing.T, frame testFrame) int {
	t.Helper()
	if frame.Type != events.TypePendingCount {
		t.Fatalf("frame type = %q, want %q", frame.Type, events.TypePendingCount)
	}
	var payload events.PendingCountPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode count payload: %v", err)
	}
	return payload.Count
}

func TestRealtimeRejectsMissingAndStaleCredentials(t *testing.T) {
	f := newRealtimeFixture(t)

	if err := f.dialErr(""); err == nil {
		t.Fatal("expected dial error without credential")
	}

	stale, err := security.IssueCredential(rtTestSecret, "admin-1", "admin", "rotated-away", time.Hour)
	if err != nil {
		t.Fatalf("issue stale credential: %v", err)
	}
	if err := f.dialErr(stale); err == nil {
		t.Fatal("expected dial error with superseded credential")
	}
}

func TestRealtimeJoinPushesBaselineCount(t *testing.T) {
	f := newRealtimeFixture(t)

	if _, err := f.moderation.Submit(context.Background(), f.member, service.SubmitInput{
		Name:    "Noodle Bar",
		Address: "5 Soup St",
	}); err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	conn := f.dial(t, f.adminCred)
	sendJoin(t, conn)

	if count := decodeCount(t, readFrame(t, conn)); count != 1 {
		t.Fatalf("baseline count = %d, want 1", count)
	}
}

func TestRealtimeFanOutToAllJoinedAdmins(t *testing.T) {
	f := newRealtimeFixture(t)

	connX := f.dial(t, f.adminCred)
	connY := f.dial(t, f.adminCred)
	sendJoin(t, connX)
	sendJoin(t, connY)

	// Baseline count for each fresh member.
	if count := decodeCount(t, readFrame(t, connX)); count != 0 {
		t.Fatalf("X baseline = %d, want 0", count)
	}
	if count := decodeCount(t, readFrame(t, connY)); count != 0 {
		t.Fatalf("Y baseline = %d, want 0", count)
	}

	venue, err := f.moderation.Submit(context.Background(), f.member, service.SubmitInput{
		Name:    "Noodle Bar",
		Address: "5 Soup St",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"X": connX, "Y": connY} {
		frame := readFrame(t, conn)
		if frame.Type != events.TypeSubmissionCreated {
			t.Fatalf("%s frame = %q, want %q", name, frame.Type, events.TypeSubmissionCreated)
		}
		var payload events.VenueSummary
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			t.Fatalf("%s decode payload: %v", name, err)
		}
		if payload.ID != venue.ID || payload.Name != "Noodle Bar" {
			t.Fatalf("%s payload = %+v", name, payload)
		}

		if count := decodeCount(t, readFrame(t, conn)); count != 1 {
			t.Fatalf("%s count = %d, want 1", name, count)
		}
	}

	// A channel joining after the event gets the baseline count and nothing
	// else: events are not replayed.
	connZ := f.dial(t, f.adminCred)
	sendJoin(t, connZ)
	if count := decodeCount(t, readFrame(t, connZ)); count != 1 {
		t.Fatalf("Z baseline = %d, want 1", count)
	}
	expectNoFrame(t, connZ)
}

func TestRealtimeMemberCannotJoinAdminRoom(t *testing.T) {
	f := newRealtimeFixture(t)

	conn := f.dial(t, f.memberCred)
	sendJoin(t, conn)

	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame = %q, want error", frame.Type)
	}

	// Member channel must receive no moderation traffic afterwards.
	if _, err := f.moderation.Submit(context.Background(), f.member, service.SubmitInput{
		Name:    "Noodle Bar",
		Address: "5 Soup St",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectNoFrame(t, conn)
}

func TestOverflowedSendQueueClosesChannel(t *testing.T) {
	// No writer pump drains the queue, so the second send overflows. The
	// channel must shut itself down so the pump closes the socket and the
	// client observes the disconnect instead of a silently stalled stream.
	ch := newWSChannel(1)

	if !ch.TrySend(events.PendingCount(1)) {
		t.Fatal("first send should be queued")
	}
	if ch.TrySend(events.PendingCount(2)) {
		t.Fatal("send into a full queue should fail")
	}

	select {
	case <-ch.done:
	default:
		t.Fatal("overflowed channel should be closed, not left attached")
	}
	if ch.TrySend(events.PendingCount(3)) {
		t.Fatal("closed channel should refuse further sends")
	}
}

func TestRealtimeDisconnectPrunesMembership(t *testing.T) {
	f := newRealtimeFixture(t)

	conn := f.dial(t, f.adminCred)
	sendJoin(t, conn)
	_ = readFrame(t, conn) // baseline

	_ = conn.Close()

	// After the close is processed, publishing must not block or error even
	// though the only member is gone.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.notify.MemberCount(hub.AdminRoom) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		_, err := f.moderation.Submit(context.Background(), f.member, service.SubmitInput{
			Name:    "Ghost Kitchen",
			Address: "0 Nowhere Ln",
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("submit after disconnect: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked after subscriber disconnect")
	}
}
