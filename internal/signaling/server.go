package signaling

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/debate"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/origin"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/ratelimit"
)

const (
	DefaultIdentifyTimeout      = 5 * time.Second
	DefaultIdleTimeout          = 60 * time.Second
	DefaultPingInterval         = 20 * time.Second
	DefaultMaxMessageBytes      = 64 * 1024
	DefaultMaxMessagesPerSecond = 50
)

// Config wires the WebSocket gateway to a Hub.
type Config struct {
	// Hub is required.
	Hub     *Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AllowedOrigins restricts the upgrade's Origin header; see origin.Policy.
	AllowedOrigins []string

	// IdentifyTimeout bounds how long a client without ?user_id= has to send
	// its hello message.
	IdentifyTimeout time.Duration
	// IdleTimeout closes connections that send nothing, not even a pong, for
	// this long. PingInterval must be shorter.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// ValidatePayloads checks offer/answer/candidate payloads before relaying.
	ValidatePayloads bool
}

// Server is the signaling WebSocket gateway:
//
//	GET /ws/signaling/{debate_id}[?user_id=...]
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = DefaultMaxMessagesPerSecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: origin.NewPolicy(cfg.AllowedOrigins).CheckOrigin,
		},
	}
}

func (s *Server) Hub() *Hub { return s.cfg.Hub }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/signaling/{debate_id}", s.handleSignal)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	debateID := r.PathValue("debate_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		return
	}
	s.cfg.Metrics.Inc(metrics.SignalingConnections)

	c := &wsConn{
		srv:       s,
		conn:      conn,
		transport: newWSTransport(conn),
		debateID:  debateID,
		userID:    strings.TrimSpace(r.URL.Query().Get("user_id")),
		limiter: ratelimit.NewTokenBucket(
			ratelimit.RealClock{},
			int64(s.cfg.MaxMessagesPerSecond),
			int64(s.cfg.MaxMessagesPerSecond),
		),
	}
	c.run()
}

type wsConn struct {
	srv       *Server
	conn      *websocket.Conn
	transport *wsTransport
	limiter   *ratelimit.TokenBucket

	debateID string
	userID   string
}

func (c *wsConn) run() {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.srv.cfg.MaxMessageBytes)

	if c.userID == "" && !c.identify() {
		return
	}

	route, err := c.srv.cfg.Hub.Attach(c.debateID, c.userID, c.transport)
	if err != nil {
		code, closeCode := attachErrorCode(err)
		c.transport.fail(code, err.Error(), closeCode, code)
		return
	}
	defer route.Close()

	c.srv.log.Debug("signaling_connected", "debate_id", c.debateID, "user_id", c.userID)

	idle := c.srv.cfg.IdleTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.keepalive(route, stopPing)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				c.transport.closeWith(websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))

		// Rate limit after reading so the close frame isn't lost to a TCP reset
		// caused by unread data.
		if !c.limiter.Allow(1) {
			c.srv.cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			c.transport.fail("rate_limited", "rate limit exceeded", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.badMessage("expected text message", websocket.CloseUnsupportedData)
			return
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			c.badMessage(err.Error(), websocket.ClosePolicyViolation)
			return
		}

		switch {
		case env.Type == MessageTypeHello:
			// Tolerated when it repeats the established identity.
			if env.From != c.userID {
				c.transport.fail("unexpected_message", "identity cannot change on an open connection", websocket.ClosePolicyViolation, "unexpected message")
				return
			}
		case env.From != "" && env.From != c.userID:
			c.transport.fail("forbidden", fmt.Sprintf("from %q does not match connection identity", env.From), websocket.ClosePolicyViolation, "forbidden")
			return
		default:
			if c.srv.cfg.ValidatePayloads {
				if err := ValidatePayload(env); err != nil {
					c.badMessage(err.Error(), websocket.ClosePolicyViolation)
					return
				}
			}
			route.Relay(env)
		}
	}
}

// identify waits for a hello message carrying the user ID.
func (c *wsConn) identify() bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.IdentifyTimeout))

	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			c.srv.cfg.Metrics.Inc(metrics.SignalingIdentifyFailures)
			c.transport.closeWith(websocket.ClosePolicyViolation, "identify timeout")
		}
		return false
	}
	if msgType != websocket.TextMessage {
		c.badMessage("expected text message", websocket.CloseUnsupportedData)
		return false
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		c.badMessage(err.Error(), websocket.ClosePolicyViolation)
		return false
	}
	if env.Type != MessageTypeHello {
		c.srv.cfg.Metrics.Inc(metrics.SignalingIdentifyFailures)
		c.transport.fail("identity_required", "first message must be hello", websocket.ClosePolicyViolation, "identity required")
		return false
	}
	c.userID = env.From
	return true
}

func (c *wsConn) keepalive(route *Route, stop <-chan struct{}) {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.transport.ping(); err != nil {
				return
			}
		case <-route.Done():
			return
		case <-stop:
			return
		}
	}
}

func (c *wsConn) badMessage(message string, closeCode int) {
	c.srv.cfg.Metrics.Inc(metrics.SignalingBadMessages)
	c.transport.fail("bad_message", message, closeCode, "bad message")
}

func attachErrorCode(err error) (code string, closeCode int) {
	switch {
	case errors.Is(err, debate.ErrNotFound):
		return "not_found", websocket.ClosePolicyViolation
	case errors.Is(err, debate.ErrForbidden):
		return "forbidden", websocket.ClosePolicyViolation
	case errors.Is(err, ErrHubClosed):
		return "unavailable", websocket.CloseGoingAway
	default:
		return "internal_error", websocket.CloseInternalServerErr
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
