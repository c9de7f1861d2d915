package uvloop

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenerAcceptsConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	loop := NewLoop()
	defer loop.pool.Close()

	accepted := make(chan *TCPStream, 1)
	listener := Listen(loop, ln, func(s *TCPStream, err error) {
		require.NoError(t, err)
		accepted <- s
		loop.Stop()
	})
	defer listener.Close()

	client, dialErr := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, dialErr)
	defer client.Close()

	// A guard timer keeps the loop from returning immediately (RunDefault
	// exits as soon as there's no active handle or request) and bounds how
	// long it waits for the accept callback before failing the test.
	guard := NewTimer(loop)
	require.NoError(t, guard.Start(func(tm *Timer) { loop.Stop() }, 2*time.Second, 0))

	require.NoError(t, loop.Run(RunDefault))

	select {
	case s := <-accepted:
		require.NotNil(t, s)
		require.NoError(t, s.Close(nil))
		loop.registry.runPendingCloses()
	default:
		t.Fatal("listener never delivered an accepted connection")
	}
}
