package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/eventchat/internal/chat"
	"github.com/dkeye/eventchat/internal/config"
	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	svc     *chat.Service
	cfg     *config.Config
	limiter *sendRateLimiter
}

func NewController(svc *chat.Service, cfg *config.Config) *Controller {
	return &Controller{
		svc:     svc,
		cfg:     cfg,
		limiter: newSendRateLimiter(sendLimit, sendWindow),
	}
}

// extractToken walks the credential sources in precedence order:
// Authorization bearer header, session cookie, token query parameter.
// The first non-empty value wins; later sources are not consulted.
func extractToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); tok != "" {
			return tok
		}
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// HandleChat runs the handshake and, on success, upgrades the
// connection and starts its pumps. Rejected connections never reach a
// room handler.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	token := extractToken(c.Request, ctl.cfg.SessionCookie)
	identity, err := ctl.svc.Authenticate(c.Request.Context(), token, c.GetHeader("Cookie"))
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, domain.ErrVerifier) {
			status = http.StatusBadGateway
		}
		log.Warn().Err(err).Str("module", "ws").Msg("handshake rejected")
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}

	wc := newWSConn(conn)
	cc := core.NewConnContext(core.ConnID(uuid.NewString()), identity)
	ms := core.NewMemberSession(cc, wc)
	log.Info().Str("module", "ws").Str("conn", string(cc.ID)).Str("user", string(identity.UserID)).Msg("new chat connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, wc)
	go ctl.readPump(ctx, cancel, ms, wc)
}
