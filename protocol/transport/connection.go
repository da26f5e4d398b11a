package transport

import (
	"sync"
	"time"

	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/sirupsen/logrus"
)

// SessionTimeout is the server-side session lifetime after which a
// session tag must be treated as expired (spec §4.7.2).
const SessionTimeout = 30 * time.Minute

type sessionInfo struct {
	tag         string
	username    string
	establishedAt time.Time
}

func (s sessionInfo) expired() bool {
	return time.Since(s.establishedAt) > SessionTimeout
}

type reconnectState struct {
	failureCount  uint
	lastFailure   time.Time
	hasLastFailure bool
	reconnecting  bool
}

// Connection layers session bookkeeping and reconnect backoff on top
// of a Transport (spec §4.7: reconnect with exponential backoff,
// session expiry detection). It is safe for concurrent use.
type Connection struct {
	transport *Transport

	mu        sync.Mutex
	reconnect reconnectState
	session   *sessionInfo
}

// NewConnection wraps an already-dialed Transport.
func NewConnection(t *Transport) *Connection {
	return &Connection{transport: t}
}

// Connect transitions Disconnected -> Connecting -> Connected. It is a
// no-op if already connecting, and fails with perr.ErrAlreadyConnected
// if already connected or authenticated.
func (c *Connection) Connect() error {
	state := c.transport.State()
	logrus.WithField("state", state.Kind).Debug("connection: connect requested")

	switch state.Kind {
	case Connected, Authenticated:
		return perr.ErrAlreadyConnected
	case Connecting:
		return nil
	}

	if err := c.transport.SetState(State{Kind: Connecting}); err != nil {
		return err
	}
	if err := c.transport.SetState(State{Kind: Connected}); err != nil {
		return err
	}

	c.mu.Lock()
	c.reconnect = reconnectState{}
	c.mu.Unlock()
	return nil
}

// Disconnect transitions to Disconnecting then Disconnected from any
// state, clearing session info. It is a no-op if already disconnected.
func (c *Connection) Disconnect() error {
	if c.transport.State().Kind == Disconnected {
		return nil
	}
	if err := c.transport.SetState(State{Kind: Disconnecting}); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	return c.transport.SetState(State{Kind: Disconnected})
}

// Authenticate transitions Connected -> Authenticated and records the
// session tag. It fails with perr.ErrAlreadyConnected if already
// authenticated, or perr.ErrNotConnected otherwise.
func (c *Connection) Authenticate(username, session string) error {
	switch c.transport.State().Kind {
	case Connected:
	case Authenticated:
		return perr.ErrAlreadyConnected
	default:
		return perr.ErrNotConnected
	}

	if err := c.transport.SetState(State{Kind: Authenticated, Session: session, Username: username}); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = &sessionInfo{tag: session, username: username, establishedAt: time.Now()}
	c.mu.Unlock()
	return nil
}

// IsConnected reports whether the connection is Connected or Authenticated.
func (c *Connection) IsConnected() bool {
	switch c.transport.State().Kind {
	case Connected, Authenticated:
		return true
	default:
		return false
	}
}

// IsAuthenticated reports whether the connection currently holds a session.
func (c *Connection) IsAuthenticated() bool {
	return c.transport.State().Kind == Authenticated
}

// SessionTag returns the current session tag, or "" if unauthenticated.
func (c *Connection) SessionTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.tag
}

// CheckSession drops an expired session, transitioning back to
// Connected and returning perr.ErrSessionExpired, or returns nil if
// the session (if any) is still live.
func (c *Connection) CheckSession() error {
	c.mu.Lock()
	info := c.session
	c.mu.Unlock()
	if info == nil {
		return nil
	}
	if !info.expired() {
		return nil
	}

	logrus.WithField("age", time.Since(info.establishedAt)).Warn("connection: session expired")
	if err := c.transport.SetState(State{Kind: Connected}); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return perr.ErrSessionExpired
}

// DropSession unconditionally transitions Authenticated -> Connected,
// for the query manager's response-driven re-auth (spec §4.8 step 3:
// response codes 501/506), as distinct from CheckSession's
// age-driven expiry.
func (c *Connection) DropSession() error {
	if c.transport.State().Kind != Authenticated {
		return nil
	}
	if err := c.transport.SetState(State{Kind: Connected}); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return nil
}

// Reconnect attempts to reconnect, rejecting the attempt with
// perr.ErrRateLimitExceeded if called before the exponential backoff
// window (2^min(failureCount,5) seconds, capped) has elapsed since the
// last failure.
func (c *Connection) Reconnect() error {
	c.mu.Lock()
	if c.reconnect.reconnecting {
		c.mu.Unlock()
		return nil
	}
	if c.reconnect.hasLastFailure {
		backoff := time.Duration(1<<minUint(c.reconnect.failureCount, 5)) * time.Second
		if elapsed := time.Since(c.reconnect.lastFailure); elapsed < backoff {
			c.mu.Unlock()
			return perr.ErrRateLimitExceeded
		}
	}
	c.reconnect.reconnecting = true
	c.mu.Unlock()

	err := c.Connect()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect.reconnecting = false
	if err != nil {
		c.reconnect.failureCount++
		c.reconnect.lastFailure = time.Now()
		c.reconnect.hasLastFailure = true
		return err
	}
	c.reconnect.failureCount = 0
	c.reconnect.hasLastFailure = false
	return nil
}

// Transport returns the underlying Transport.
func (c *Connection) Transport() *Transport { return c.transport }

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}
