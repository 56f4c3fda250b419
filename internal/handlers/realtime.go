package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"

	"tastemap/api/internal/events"
	"tastemap/api/internal/hub"
	"tastemap/api/internal/models"
	"tastemap/api/internal/security"
)

const msgJoinAdminRoom = "join_admin_room"

type wsClientFrame struct {
	Type string `json:"type"`
}

// wsChannel adapts one websocket connection to the hub's Channel contract.
// Events are queued on a buffered channel drained by a single writer
// goroutine, which keeps publishing non-blocking for the hub and preserves
// per-connection ordering. A client that lets the queue fill up is dropped.
type wsChannel struct {
	send chan events.Event

	once sync.Once
	done chan struct{}
}

func newWSChannel(queueSize int) *wsChannel {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &wsChannel{
		send: make(chan events.Event, queueSize),
		done: make(chan struct{}),
	}
}

func (ch *wsChannel) TrySend(evt events.Event) bool {
	select {
	case <-ch.done:
		return false
	default:
	}

	select {
	case ch.send <- evt:
		return true
	default:
		// A client that cannot drain its queue gets disconnected rather than
		// staying attached with silent gaps in its event stream.
		ch.close()
		return false
	}
}

func (ch *wsChannel) close() {
	ch.once.Do(func() { close(ch.done) })
}

func (ch *wsChannel) writePump(conn *websocket.Conn) {
	encoder := json.NewEncoder(conn)
	for {
		select {
		case evt := <-ch.send:
			if err := encoder.Encode(evt); err != nil {
				ch.close()
				_ = conn.Close()
				return
			}
		case <-ch.done:
			_ = conn.Close()
			return
		}
	}
}

// Realtime upgrades the connection for authenticated clients. Browsers cannot
// set headers on a websocket handshake, so the credential is also accepted as
// a query parameter.
func (h HandlerSet) Realtime(c *gin.Context) {
	account, err := h.realtimeAccount(c)
	if err != nil {
		status := http.StatusUnauthorized
		body := gin.H{"error": "unauthenticated", "forceLogout": false}
		if errors.Is(err, errRealtimeSuperseded) {
			body = gin.H{"error": "session_superseded", "forceLogout": true}
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	server := websocket.Server{
		Handler: func(conn *websocket.Conn) {
			h.serveRealtime(conn, account)
		},
		// Skip origin verification; CORS policy is enforced upstream.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	}
	server.ServeHTTP(c.Writer, c.Request)
}

var errRealtimeSuperseded = errors.New("session superseded")

func (h HandlerSet) realtimeAccount(c *gin.Context) (models.Account, error) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if raw == "" || raw == c.GetHeader("Authorization") {
		raw = c.Query("token")
	}
	if raw == "" {
		return models.Account{}, errors.New("missing credential")
	}

	claims, err := security.ParseCredential(raw, h.cfg.Security.CredentialSecret)
	if err != nil {
		return models.Account{}, err
	}

	account, err := h.accounts.GetByID(c.Request.Context(), claims.AccountID)
	if err != nil {
		return models.Account{}, err
	}
	if account.Status != models.AccountStatusActive {
		return models.Account{}, errors.New("account not active")
	}
	if account.SessionToken == nil || *account.SessionToken != claims.SessionToken {
		return models.Account{}, errRealtimeSuperseded
	}
	return account, nil
}

func (h HandlerSet) serveRealtime(conn *websocket.Conn, account models.Account) {
	// The upgrade hijacked the connection, but the server's per-request
	// deadline is still armed on it and would cut this channel short.
	_ = conn.SetDeadline(time.Time{})

	ch := newWSChannel(h.cfg.Realtime.SendQueueSize)
	go ch.writePump(conn)

	joined := false
	defer func() {
		if joined {
			h.notify.Leave(hub.AdminRoom, ch)
		}
		ch.close()
	}()

	decoder := json.NewDecoder(conn)
	for {
		var frame wsClientFrame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Debug().Err(err).Str("account_id", account.ID).Msg("realtime read ended")
			}
			return
		}

		switch frame.Type {
		case msgJoinAdminRoom:
			if account.Role != models.AccountRoleAdmin {
				ch.TrySend(events.Event{Type: "error", Payload: gin.H{"error": "forbidden"}})
				continue
			}
			if joined {
				continue
			}
			h.notify.Join(hub.AdminRoom, ch)
			joined = true

			// Events are not replayed, so a fresh member gets its baseline by
			// direct query rather than by waiting for the next transition.
			count, err := h.moderation.PendingCount(conn.Request().Context())
			if err != nil {
				h.log.Error().Err(err).Msg("pending count on join failed")
				continue
			}
			ch.TrySend(events.PendingCount(count))
		default:
			h.log.Debug().Str("type", frame.Type).Msg("ignoring unknown realtime frame")
		}
	}
}
