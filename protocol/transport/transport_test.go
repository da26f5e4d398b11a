package transport

import (
	"net"
	"testing"
	"time"

	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:9999")
	require.NoError(t, err)
	tr, err := Dial(Config{ServerAddr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return NewConnection(tr)
}

func TestConnectionLifecycle(t *testing.T) {
	c := newTestConnection(t)

	assert.False(t, c.IsConnected())
	assert.False(t, c.IsAuthenticated())

	require.NoError(t, c.Connect())
	assert.True(t, c.IsConnected())
	assert.False(t, c.IsAuthenticated())

	require.NoError(t, c.Authenticate("testuser", "session123"))
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "session123", c.SessionTag())

	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	assert.False(t, c.IsAuthenticated())
	assert.Equal(t, "", c.SessionTag())
}

func TestConnectWhenAlreadyConnected(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.Connect())

	err := c.Connect()
	assert.ErrorIs(t, err, perr.ErrAlreadyConnected)
}

func TestAuthenticateRequiresConnection(t *testing.T) {
	c := newTestConnection(t)
	err := c.Authenticate("user", "session")
	assert.ErrorIs(t, err, perr.ErrNotConnected)
}

func TestCheckSessionExpiry(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Authenticate("user", "session"))

	c.mu.Lock()
	c.session.establishedAt = time.Now().Add(-SessionTimeout - time.Second)
	c.mu.Unlock()

	err := c.CheckSession()
	assert.ErrorIs(t, err, perr.ErrSessionExpired)
	assert.False(t, c.IsAuthenticated())
	assert.True(t, c.IsConnected())
}

func TestCheckSessionStillLive(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Authenticate("user", "session"))

	require.NoError(t, c.CheckSession())
	assert.True(t, c.IsAuthenticated())
}

func TestReconnectBackoff(t *testing.T) {
	c := newTestConnection(t)

	c.mu.Lock()
	c.reconnect.failureCount = 1
	c.reconnect.lastFailure = time.Now()
	c.reconnect.hasLastFailure = true
	c.mu.Unlock()

	err := c.Reconnect()
	assert.ErrorIs(t, err, perr.ErrRateLimitExceeded)
}

func TestReconnectSucceedsAfterBackoffElapses(t *testing.T) {
	c := newTestConnection(t)

	c.mu.Lock()
	c.reconnect.failureCount = 0
	c.reconnect.lastFailure = time.Now().Add(-2 * time.Second)
	c.reconnect.hasLastFailure = true
	c.mu.Unlock()

	require.NoError(t, c.Reconnect())
	assert.True(t, c.IsConnected())
}

func TestSetStateRejectsIllegalTransition(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:9998")
	require.NoError(t, err)
	tr, err := Dial(Config{ServerAddr: addr})
	require.NoError(t, err)
	defer tr.Close()

	err = tr.SetState(State{Kind: Authenticated, Session: "s"})
	assert.ErrorIs(t, err, perr.ErrInvalidPacket)
}
