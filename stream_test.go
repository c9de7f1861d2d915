package uvloop

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTCPStreamPingPong drives a full duplex echo round trip over an
// in-memory net.Pipe: a server stream echoes back whatever it reads, a
// client stream writes a message and reads the echo.
func TestTCPStreamPingPong(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	loop := NewLoop()
	defer loop.pool.Close()

	server := NewTCPStream(loop, serverConn)
	client := NewTCPStream(loop, clientConn)

	var echoed []byte

	require.NoError(t, server.ReadStart(
		func(n int) []byte { return make([]byte, n) },
		func(n int, buf []byte, err error) {
			if n > 0 {
				_, _ = server.Write(append([]byte(nil), buf[:n]...), nil)
			}
			if err != nil {
				_ = server.Close(nil)
			}
		},
	))

	require.NoError(t, client.ReadStart(
		func(n int) []byte { return make([]byte, n) },
		func(n int, buf []byte, err error) {
			if n > 0 {
				echoed = append(echoed, buf[:n]...)
				if len(echoed) >= len("ping") {
					loop.Stop()
				}
			}
		},
	))

	_, err := client.Write([]byte("ping"), nil)
	require.NoError(t, err)

	guard := NewTimer(loop)
	require.NoError(t, guard.Start(func(tm *Timer) { loop.Stop() }, 2*time.Second, 0))

	require.NoError(t, loop.Run(RunDefault))

	require.Equal(t, "ping", string(echoed))

	require.NoError(t, client.ReadStop())
	require.NoError(t, server.ReadStop())
	require.NoError(t, client.Close(nil))
	require.NoError(t, server.Close(nil))
	require.NoError(t, guard.Stop())
	require.NoError(t, guard.Close(nil))
	loop.registry.runPendingCloses()
}

// TestStreamCloseCancelsQueuedWrites verifies that closing a stream with
// writes still queued fails them with ErrCancelled before the stream's own
// close callback runs.
func TestStreamCloseCancelsQueuedWrites(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	loop := NewLoop()
	defer loop.pool.Close()

	client := NewTCPStream(loop, clientConn)

	// nothing ever reads from serverConn, so this write sits in the queue
	var writeErr error
	writeDone := make(chan struct{})
	_, err := client.Write([]byte("buffered"), func(r *Request, err error) {
		writeErr = err
		close(writeDone)
	})
	require.NoError(t, err)

	var closed bool
	require.NoError(t, client.Close(func(h *Handle) { closed = true }))

	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatal("queued write's callback never ran")
	}
	require.ErrorIs(t, writeErr, ErrCancelled)

	loop.registry.runPendingCloses()
	require.True(t, closed)
}

// TestTryWriteSucceedsWhenPeerIsReading verifies TryWrite's single-attempt,
// no-queueing semantics: with a reader draining the other end, a TryWrite
// completes synchronously and reports the bytes actually written.
func TestTryWriteSucceedsWhenPeerIsReading(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	loop := NewLoop()
	defer loop.pool.Close()

	client := NewTCPStream(loop, clientConn)

	read := make(chan struct{})
	go func() {
		buf := make([]byte, 4)
		_, _ = serverConn.Read(buf)
		close(read)
	}()

	n, err := client.TryWrite([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	select {
	case <-read:
	case <-time.After(time.Second):
		t.Fatal("peer never observed the write")
	}

	require.Equal(t, 0, client.WriteQueueSize(), "TryWrite must never enqueue")
	require.NoError(t, client.Close(nil))
	loop.registry.runPendingCloses()
}

// TestTryWriteReportsWouldBlockWithoutAPeerReading verifies that a TryWrite
// with nobody draining the other end fails with ErrWouldBlock rather than
// blocking or queueing the data for a later retry.
func TestTryWriteReportsWouldBlockWithoutAPeerReading(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	loop := NewLoop()
	defer loop.pool.Close()

	client := NewTCPStream(loop, clientConn)

	n, err := client.TryWrite([]byte("ping"))
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Equal(t, 0, n)
	require.Equal(t, 0, client.WriteQueueSize(), "TryWrite must never enqueue on failure either")

	require.NoError(t, client.Close(nil))
	loop.registry.runPendingCloses()
}

// TestTryWriteOnClosingStreamFailsBadState verifies TryWrite is gated by the
// same CLOSING-handle check as Write and ReadStart.
func TestTryWriteOnClosingStreamFailsBadState(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	loop := NewLoop()
	defer loop.pool.Close()

	client := NewTCPStream(loop, clientConn)
	require.NoError(t, client.Close(nil))

	n, err := client.TryWrite([]byte("ping"))
	require.ErrorIs(t, err, ErrBadState)
	require.Equal(t, 0, n)
}

func TestWriteZeroBytesCompletesInline(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	loop := NewLoop()
	defer loop.pool.Close()

	client := NewTCPStream(loop, clientConn)
	var called bool
	req, err := client.Write(nil, func(r *Request, err error) { called = true })
	require.NoError(t, err)
	require.NotNil(t, req)
	require.True(t, called, "zero-byte write must complete synchronously")

	require.NoError(t, client.Close(nil))
	loop.registry.runPendingCloses()
}
