package uvloop

import "net"

// TCPStream adapts an already-connected net.Conn (typically *net.TCPConn,
// but any net.Conn works) into a loop-driven Stream.
type TCPStream struct {
	streamCore
	conn net.Conn
}

// NewTCPStream binds conn to loop. The stream takes ownership of conn:
// closing the stream's handle closes conn too.
func NewTCPStream(loop *Loop, conn net.Conn) *TCPStream {
	s := &TCPStream{conn: conn}
	initStreamCore(&s.streamCore, loop, HandleTCP, conn)
	inner := s.teardown
	s.teardown = func() {
		inner()
		_ = conn.Close()
	}
	return s
}

// Conn returns the underlying net.Conn.
func (s *TCPStream) Conn() net.Conn { return s.conn }
