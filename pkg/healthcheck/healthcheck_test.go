package healthcheck_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/wattprof/pkg/healthcheck"
)

func newTestServer(t *testing.T) (*healthcheck.ReadyServer, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "ready.sock")
	server := healthcheck.NewReadyServer(socketPath, log.New(os.Stderr).Level(log.Disabled))

	return server, socketPath
}

func TestReadyServer_AnswersAfterNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	server, socketPath := newTestServer(t)
	require.NoError(t, server.Listen(ctx))
	defer server.Shutdown()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	server.NotifyReady()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(healthcheck.ReadyMsg), buf[0])
}

func TestReadyServer_AnswersConnectionAfterReadiness(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	server, socketPath := newTestServer(t)
	require.NoError(t, server.Listen(ctx))
	defer server.Shutdown()

	// Readiness marked before the peer ever connects.
	server.NotifyReady()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(healthcheck.ReadyMsg), buf[0])
}

func TestReadyServer_ReplacesStaleSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	server, socketPath := newTestServer(t)
	require.NoError(t, os.WriteFile(socketPath, []byte{}, 0o600))

	require.NoError(t, server.Listen(ctx))
	defer server.Shutdown()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	conn.Close()
}

func TestReadyServer_ShutdownRemovesSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	server, socketPath := newTestServer(t)
	require.NoError(t, server.Listen(ctx))

	require.NoError(t, server.Shutdown())
	_, err := os.Stat(socketPath)
	require.True(t, os.IsNotExist(err))

	// Idempotent.
	require.NoError(t, server.Shutdown())
}
