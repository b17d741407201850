package transport_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendabot/vendabot/internal/transport"
)

type scriptConn struct {
	events chan transport.Event

	mu   sync.Mutex
	sent []transport.Message
}

func newScriptConn() *scriptConn {
	return &scriptConn{events: make(chan transport.Event, 8)}
}

func (c *scriptConn) Events() <-chan transport.Event { return c.events }

func (c *scriptConn) Send(_ context.Context, to string, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *scriptConn) Close() error { return nil }

func (c *scriptConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *scriptConn) lastSent() transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

type scriptDialer struct {
	mu    sync.Mutex
	conns []*scriptConn
}

func (d *scriptDialer) Dial(_ context.Context, authDir string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newScriptConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// conn waits for the nth dial (1-based) and returns its connection.
func (d *scriptDialer) conn(t *testing.T, n int) *scriptConn {
	t.Helper()
	var c *scriptConn
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) >= n {
			c = d.conns[n-1]
			return true
		}
		return false
	}, time.Second, time.Millisecond)
	return c
}

func authDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "auth")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creds.json"), []byte("{}"), 0o600))
	return dir
}

func dirExists(dir string) bool {
	_, err := os.Stat(dir)
	return err == nil
}

func newTestSupervisor(t *testing.T, handler transport.MessageHandler) (*transport.Supervisor, *scriptDialer, string, context.Context) {
	t.Helper()
	dir := authDir(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	dialer := &scriptDialer{}
	sup := transport.NewSupervisor(dialer, transport.CredStore{Dir: dir}, log, handler)
	sup.AuthRejectedDelay = time.Millisecond
	sup.CleanSlateDelay = time.Millisecond
	sup.BenignDelay = time.Millisecond

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = time.Millisecond
	bo.MaxElapsedTime = 0
	sup.Backoff = bo

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return sup, dialer, dir, ctx
}

func echoHandler(_ context.Context, _, text string) (string, error) {
	return "echo: " + text, nil
}

func TestSendRequiresOpenConnection(t *testing.T) {
	sup, dialer, _, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)

	err := sup.Send(ctx, "551", transport.Message{Text: "oi"})
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)

	conn.events <- transport.Event{Kind: transport.EventOpen}
	require.Eventually(t, func() bool { return sup.State() == transport.StateOpen }, time.Second, time.Millisecond)

	require.NoError(t, sup.Send(ctx, "551", transport.Message{Text: "oi"}))
	assert.Equal(t, 1, conn.sentCount())

	// Blank text is swallowed, not sent.
	require.NoError(t, sup.Send(ctx, "551", transport.Message{Text: "   "}))
	assert.Equal(t, 1, conn.sentCount())
}

func TestInboundMessageGetsReply(t *testing.T) {
	sup, dialer, _, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventMessage, From: "551", Text: "oi"}

	require.Eventually(t, func() bool { return conn.sentCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "echo: oi", conn.lastSent().Text)
}

func TestHandlerErrorSendsFallback(t *testing.T) {
	handler := func(context.Context, string, string) (string, error) {
		return "", errors.New("boom")
	}
	sup, dialer, _, ctx := newTestSupervisor(t, handler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventMessage, From: "551", Text: "oi"}

	require.Eventually(t, func() bool { return conn.sentCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, sup.FallbackText, conn.lastSent().Text)
}

func TestBenignCloseRedialsWithoutPurge(t *testing.T) {
	sup, dialer, dir, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventClosed, Code: transport.CodeStreamNoise}
	close(conn.events)

	dialer.conn(t, 2)
	assert.True(t, dirExists(dir), "benign close must not purge credentials")
}

func TestStreamErrorTextIsBenign(t *testing.T) {
	sup, dialer, dir, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventClosed, Err: errors.New("stream:error after pairing")}
	close(conn.events)

	dialer.conn(t, 2)
	assert.True(t, dirExists(dir))
}

func TestLoggedOutPurgesAndRestarts(t *testing.T) {
	sup, dialer, dir, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventClosed, Code: transport.CodeLoggedOut}
	close(conn.events)

	dialer.conn(t, 2)
	assert.False(t, dirExists(dir), "logout must purge credentials")
}

func TestAuthRejectedPurgesAndRestarts(t *testing.T) {
	sup, dialer, dir, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventClosed, Code: transport.CodeAuthRejected}
	close(conn.events)

	dialer.conn(t, 2)
	assert.False(t, dirExists(dir))
}

func TestTransientFailuresHitCeiling(t *testing.T) {
	sup, dialer, dir, ctx := newTestSupervisor(t, echoHandler)
	sup.Start(ctx)

	// First transient close counts one attempt and redials with backoff.
	conn := dialer.conn(t, 1)
	conn.events <- transport.Event{Kind: transport.EventOpen}
	conn.events <- transport.Event{Kind: transport.EventClosed, Code: 428}
	close(conn.events)

	require.True(t, dirExists(dir), "one transient failure keeps credentials")

	// Second consecutive transient close reaches MaxAttempts: the session
	// is treated as corrupted, purged and restarted clean.
	conn2 := dialer.conn(t, 2)
	conn2.events <- transport.Event{Kind: transport.EventClosed, Code: 428}
	close(conn2.events)

	dialer.conn(t, 3)
	assert.False(t, dirExists(dir))
}
