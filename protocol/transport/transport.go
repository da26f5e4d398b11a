// Package transport is the UDP socket wrapper and connection state
// machine for the AniDB protocol (spec §4.7, §5). Grounded on
// _examples/original_source/anidb_client_core/src/protocol/transport/
// {connection,mod}.rs for the state machine and reconnect-backoff
// shape, and on the pack's own hand-rolled UDP client
// (other_examples/.../clientudp.go) for the net.UDPConn dial/
// read/write-deadline idiom.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/sirupsen/logrus"
)

// StateKind is one node of the connection state machine (spec §4.7.1):
// Disconnected -> Connecting -> Connected -> Authenticated -> back to
// Connected on logout/session expiry, Disconnecting reachable from any
// state.
type StateKind int

const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Authenticated
	Disconnecting
)

func (k StateKind) String() string {
	switch k {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// State is the full connection state, carrying the session tag and
// username payload Connected/Authenticated hold in the original
// tagged-union design.
type State struct {
	Kind     StateKind
	Session  string
	Username string
}

// Config configures a Transport's underlying UDP socket.
type Config struct {
	ServerAddr   *net.UDPAddr
	LocalAddr    *net.UDPAddr // optional; nil picks an ephemeral port
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultReadTimeout and DefaultWriteTimeout match the per-request
// timeout spec §4.8 assumes the query manager layers retries on top of.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Transport owns the raw UDP socket and the connection state machine.
// It is safe for concurrent use; state reads/writes are guarded by mu,
// but only one goroutine should be reading the socket at a time (spec
// §5: strict request-response, one in-flight command per session).
type Transport struct {
	cfg  Config
	conn *net.UDPConn

	mu    sync.RWMutex
	state State
}

// Dial opens the UDP socket without changing connection state; callers
// drive the state machine explicitly via SetState (mirroring the
// original design's separation between socket setup and protocol
// state).
func Dial(cfg Config) (*Transport, error) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	conn, err := net.DialUDP("udp", cfg.LocalAddr, cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return &Transport{cfg: cfg, conn: conn}, nil
}

// State returns a snapshot of the current state.
func (t *Transport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// legalTransitions enumerates the edges of the state machine (spec
// §4.7.1); apart from staying in the same state, any edge not listed
// here is rejected.
var legalTransitions = map[StateKind][]StateKind{
	Disconnected:  {Connecting},
	Connecting:    {Connected, Disconnecting},
	Connected:     {Authenticated, Disconnecting},
	Authenticated: {Connected, Disconnecting}, // logout or session expiry
	Disconnecting: {Disconnected},
}

// SetState transitions to next, rejecting edges not present in
// legalTransitions other than re-entry into the current state.
func (t *Transport) SetState(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.state.Kind
	ok := from == next.Kind // allow idempotent re-entry, e.g. Connected -> Connected
	for _, allowed := range legalTransitions[from] {
		if allowed == next.Kind {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("transport: illegal state transition %s -> %s: %w", from, next.Kind, perr.ErrInvalidPacket)
	}

	logrus.WithFields(logrus.Fields{"from": from, "to": next.Kind}).Debug("transport: state transition")
	t.state = next
	return nil
}

// Send writes a fully-encoded command datagram, applying the
// configured write deadline.
func (t *Transport) Send(p []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	if _, err := t.conn.Write(p); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Recv reads one datagram into buf, applying the configured read
// deadline, or ctx's deadline if sooner.
func (t *Transport) Recv(ctx context.Context, buf []byte) (int, error) {
	deadline := time.Now().Add(t.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("transport: set read deadline: %w", err)
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, perr.ErrTimeout
		}
		return 0, fmt.Errorf("transport: read: %w", err)
	}
	return n, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
