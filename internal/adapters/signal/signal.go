// Package signal is the websocket side of the room: it admits connections,
// runs their read loops and owns their transport resources.
package signal

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/app"
	"github.com/dkeye/Ping/internal/core"
	"github.com/dkeye/Ping/internal/domain"
)

type SignalWSController struct {
	Room    *app.Room
	Auth    Verifier
	Limiter *RateLimiter
	Opts    ConnOptions
}

func NewSignalWSController(room *app.Room, auth Verifier, limiter *RateLimiter, opts ConnOptions) *SignalWSController {
	return &SignalWSController{Room: room, Auth: auth, Limiter: limiter, Opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the session until it closes.
// The credential is verified after the upgrade so a refusal can carry
// CloseUnauthorized.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, credential string) {
	id := core.ConnID(c.GetString("request_id"))
	if id == "" {
		id = core.ConnID(uuid.NewString())
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	conn := NewWsConn(id, ws, ctl.Opts)
	sess := NewSession(conn, ctl.Room, ctl.Auth, ctl.Limiter)
	if err := sess.Run(ctx, credential); err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("session ended with error")
	}
}
