package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"ridecore/internal/domain/models"
	"ridecore/internal/notify"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
	"ridecore/pkg/ws"
)

// TokenVerifier resolves a bearer token into a user. The websocket handshake
// verifies the token itself: browsers cannot set headers on WS upgrades, so
// the token also rides in the query string.
type TokenVerifier interface {
	Verify(token string) (*models.User, error)
}

type WS struct {
	verifier TokenVerifier
	notifier *notify.Notifier
	l        logger.Logger

	upgrader websocket.Upgrader
}

func NewWS(verifier TokenVerifier, notifier *notify.Notifier, l logger.Logger) *WS {
	return &WS{
		verifier: verifier,
		notifier: notifier,
		l:        l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handle is the websocket handshake. Any authenticated party may connect;
// the party's role is recorded in the registry rather than gated here, so a
// rider can hold a session on whichever instance it talks to. The connection
// stays registered for notifications until the peer disconnects; a reconnect
// replaces the previous session.
func (h *WS) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ws_handshake")

	user, err := h.authenticate(r)
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}
	ctx = wrap.WithUserID(ctx, user.ID.String())

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.l.Error(wrap.ErrorCtx(ctx, err), "websocket upgrade failed", err)
		return
	}

	session := ws.NewConn(r.Context(), raw)
	h.notifier.Register(user.ID, user.Role, session)
	h.l.Info(ctx, "party connected", "role", user.Role)

	go func() {
		if err := session.KeepAlive(); err != nil {
			h.l.Debug(ctx, "keepalive stopped", "err", err.Error())
		}
	}()

	// Block until the peer goes away, then drop the registration. If a
	// reconnect already replaced this session, Unregister must not tear
	// the new one down.
	if err := session.Wait(); err != nil {
		h.l.Debug(ctx, "connection closed", "err", err.Error())
	}
	h.notifier.UnregisterSession(user.ID, session)
	h.l.Info(ctx, "party disconnected", "role", user.Role)
}

var errMissingToken = errors.New("missing access token")

func (h *WS) authenticate(r *http.Request) (*models.User, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				return nil, errors.New("invalid Authorization header format")
			}
			token = parts[1]
		}
	}
	if token == "" {
		return nil, errMissingToken
	}
	return h.verifier.Verify(token)
}
