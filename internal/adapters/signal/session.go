package signal

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/app"
	"github.com/dkeye/Ping/internal/domain"
)

// CloseUnauthorized is the application close code for refused admission.
const CloseUnauthorized = 4003

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Verifier checks an admission credential.
type Verifier interface {
	Verify(credential string) bool
}

// Session drives one connection from admission to teardown.
type Session struct {
	conn    *WsConn
	room    *app.Room
	auth    Verifier
	limiter *RateLimiter

	state    atomic.Int32
	teardown sync.Once
}

func NewSession(conn *WsConn, room *app.Room, auth Verifier, limiter *RateLimiter) *Session {
	return &Session{conn: conn, room: room, auth: auth, limiter: limiter}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	log.Debug().Str("module", "signal").Str("conn", string(s.conn.ID())).Str("state", st.String()).Msg("session state")
}

// Run blocks until the session is closed. It returns domain.ErrUnauthorized
// for a refused credential, a domain.ErrDecode error for a malformed frame,
// domain.ErrRateLimited when the limiter trips and nil for an ordinary
// disconnect.
func (s *Session) Run(ctx context.Context, credential string) error {
	s.setState(StateAuthenticating)
	if !s.auth.Verify(credential) {
		log.Warn().Str("module", "signal").Str("conn", string(s.conn.ID())).Msg("unauthorized admission")
		s.conn.CloseWith(CloseUnauthorized, "Unauthorized")
		s.setState(StateClosed)
		return domain.ErrUnauthorized
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setState(StateActive)
	defer s.close()
	go s.conn.writePump(ctx)
	s.room.Join(s.conn)

	// Cancelling ctx stops writePump, which closes the socket and so ends
	// the blocking read in readLoop.
	return s.readLoop()
}

func (s *Session) readLoop() error {
	id := s.conn.ID()
	s.conn.prepareRead()

	for {
		_, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			logReadError(s, err)
			return nil
		}
		// Frames still buffered after the Room pruned this connection are
		// not delivered.
		if !s.room.Registry.Contains(id) {
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("connection no longer admitted, ending session")
			return nil
		}

		in, err := domain.DecodeInbound(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad frame, closing session")
			s.conn.CloseWith(websocket.CloseUnsupportedData, "malformed frame")
			return err
		}
		if in.Type != domain.KindText {
			log.Debug().Str("module", "signal").Str("conn", string(id)).Str("type", string(in.Type)).Msg("ignored frame")
			continue
		}
		if s.limiter != nil && !s.limiter.Allow(id) {
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("rate limit exceeded, closing session")
			s.conn.CloseWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return domain.ErrRateLimited
		}
		s.room.Say(s.conn, *in.Content)
	}
}

// close runs exactly once per admitted session, whatever ended it.
func (s *Session) close() {
	s.teardown.Do(func() {
		s.setState(StateClosing)
		s.room.Leave(s.conn)
		s.conn.Close()
		if s.limiter != nil {
			s.limiter.Forget(s.conn.ID())
		}
		s.setState(StateClosed)
		log.Info().Str("module", "signal").Str("conn", string(s.conn.ID())).Msg("session closed")
	})
}

func logReadError(s *Session, err error) {
	ev := log.Info()
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
	case errors.Is(err, websocket.ErrReadLimit):
		ev = log.Warn()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	default:
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "signal").Str("conn", string(s.conn.ID())).Msg("read ended")
}
