package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Ping/internal/app"
	"github.com/dkeye/Ping/internal/config"
	"github.com/dkeye/Ping/internal/core"
	"github.com/dkeye/Ping/internal/domain"
)

const testTimeout = 2 * time.Second

type verifierFunc func(string) bool

func (f verifierFunc) Verify(c string) bool { return f(c) }

var acceptToken = verifierFunc(func(c string) bool { return c == "good" })

var testOpts = ConnOptions{
	SendBuffer: 64,
	ReadLimit:  4096,
	PingPeriod: time.Minute,
	PongWait:   2 * time.Minute,
}

type harness struct {
	room     *app.Room
	srv      *httptest.Server
	sessions chan *Session
}

func newHarness(t *testing.T, limiter *RateLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{
		room:     app.NewRoom(app.SimplePolicy{}),
		sessions: make(chan *Session, 16),
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		conn := NewWsConn(core.ConnID(c.Query("id")), ws, testOpts)
		sess := NewSession(conn, h.room, acceptToken, limiter)
		h.sessions <- sess
		_ = sess.Run(ctx, c.Query("token"))
	})
	h.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		h.srv.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, id, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?id=" + id + "&token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(testTimeout)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// nextOfType skips frames until one of the given type arrives.
func nextOfType(t *testing.T, ws *websocket.Conn, kind domain.Kind) map[string]any {
	t.Helper()
	for {
		m := readJSON(t, ws)
		if m["type"] == string(kind) {
			return m
		}
	}
}

func waitPresence(t *testing.T, ws *websocket.Conn, n int) {
	t.Helper()
	for {
		m := nextOfType(t, ws, domain.KindPresence)
		if int(m["count"].(float64)) == n {
			return
		}
	}
}

func sendText(t *testing.T, ws *websocket.Conn, content string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "text", "content": content}))
}

func TestSession_UnauthorizedIsClosedWith4003(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.dial(t, "intruder", "bad")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(testTimeout)))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, CloseUnauthorized, ce.Code)
	assert.Equal(t, "Unauthorized", ce.Text)

	sess := <-h.sessions
	assert.Eventually(t, func() bool { return sess.State() == StateClosed }, testTimeout, 10*time.Millisecond)
	assert.Zero(t, h.room.Count())
}

func TestSession_TextFanOutAndSelfEcho(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	b := h.dial(t, "b", "good")
	waitPresence(t, b, 2)
	c := h.dial(t, "c", "good")
	waitPresence(t, c, 3)
	waitPresence(t, a, 3)

	sendText(t, a, "hi")

	for _, peer := range []*websocket.Conn{b, c} {
		m := nextOfType(t, peer, domain.KindText)
		assert.Equal(t, "hi", m["content"])
		assert.NotContains(t, m, "self")
		ts, ok := m["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(domain.TimestampLayout, ts)
		assert.NoError(t, err)
	}
	echo := nextOfType(t, a, domain.KindText)
	assert.Equal(t, "hi", echo["content"])
	assert.Equal(t, true, echo["self"])
}

func TestSession_DisconnectUpdatesPresence(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	b := h.dial(t, "b", "good")
	waitPresence(t, a, 2)
	waitPresence(t, b, 2)

	require.NoError(t, b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = b.Close()

	waitPresence(t, a, 1)
	assert.Eventually(t, func() bool { return h.room.Count() == 1 }, testTimeout, 10*time.Millisecond)

	<-h.sessions // a
	sb := <-h.sessions
	assert.Eventually(t, func() bool { return sb.State() == StateClosed }, testTimeout, 10*time.Millisecond)
}

func TestSession_MalformedFrameClosesOnlyThatSession(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	b := h.dial(t, "b", "good")
	waitPresence(t, a, 2)
	waitPresence(t, b, 2)

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("{not json")))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(testTimeout)))
	var err error
	for err == nil {
		_, _, err = b.ReadMessage()
	}
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, websocket.CloseUnsupportedData, ce.Code)

	waitPresence(t, a, 1)
	sendText(t, a, "still here")
	assert.Equal(t, "still here", nextOfType(t, a, domain.KindText)["content"])
}

func TestSession_UnknownFrameTypeIgnored(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	b := h.dial(t, "b", "good")
	waitPresence(t, a, 2)
	waitPresence(t, b, 2)

	require.NoError(t, a.WriteJSON(map[string]string{"type": "typing"}))
	sendText(t, a, "after")

	m := readJSON(t, b)
	assert.Equal(t, "text", m["type"])
	assert.Equal(t, "after", m["content"])
	assert.Equal(t, 2, h.room.Count())
}

func TestSession_DefaultConfigEchoesEveryFrame(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	h := newHarness(t, LimiterFor(cfg.RateLimit.Messages, cfg.RateLimit.Interval))
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)

	const burst = 21
	for i := 0; i < burst; i++ {
		sendText(t, a, fmt.Sprintf("m%d", i))
	}
	for i := 0; i < burst; i++ {
		echo := nextOfType(t, a, domain.KindText)
		assert.Equal(t, fmt.Sprintf("m%d", i), echo["content"])
		assert.Equal(t, true, echo["self"])
	}
	assert.Equal(t, 1, h.room.Count())
}

func TestSession_RateLimitClosesWithPolicyViolation(t *testing.T) {
	h := newHarness(t, NewRateLimiter(1, time.Minute))
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	b := h.dial(t, "b", "good")
	waitPresence(t, a, 2)
	waitPresence(t, b, 2)

	sendText(t, a, "one")
	sendText(t, a, "two")
	assert.Equal(t, "one", nextOfType(t, a, domain.KindText)["content"])

	require.NoError(t, a.SetReadDeadline(time.Now().Add(testTimeout)))
	var err error
	for err == nil {
		var data []byte
		if _, data, err = a.ReadMessage(); err == nil {
			assert.NotContains(t, string(data), `"two"`)
		}
	}
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)

	assert.Equal(t, "one", nextOfType(t, b, domain.KindText)["content"])
	waitPresence(t, b, 1)
}

func TestSession_PrunedConnectionCannotSpeak(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)
	sa := <-h.sessions
	b := h.dial(t, "b", "good")
	waitPresence(t, b, 2)

	require.True(t, h.room.Registry.Remove("a"))
	sendText(t, a, "ghost")
	assert.Eventually(t, func() bool { return sa.State() == StateClosed }, testTimeout, 10*time.Millisecond)

	sendText(t, b, "real")
	m := nextOfType(t, b, domain.KindText)
	assert.Equal(t, "real", m["content"])
	assert.Equal(t, true, m["self"])
	assert.Equal(t, 1, h.room.Count())
}

func TestSession_ShareFileReachesSockets(t *testing.T) {
	h := newHarness(t, nil)
	a := h.dial(t, "a", "good")
	waitPresence(t, a, 1)

	h.room.ShareFile("a.txt", "00000000_a.txt", 1)

	m := nextOfType(t, a, domain.KindFile)
	assert.Equal(t, "a.txt", m["filename"])
	assert.Equal(t, "00000000_a.txt", m["stored_name"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestServerShutdownClosesSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	room := app.NewRoom(app.SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(room, acceptToken, nil, testOpts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c, "good") })
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	waitPresence(t, ws, 1)

	cancel()
	assert.Eventually(t, func() bool { return room.Count() == 0 }, testTimeout, 10*time.Millisecond)
}
