package uvloop

import (
	"net"
	"time"
)

// acceptProbeInterval bounds how long Listener's accept loop blocks in a
// single net.Listener.Accept call before checking for Close, mirroring
// poller_netpoll.go's probeInterval.
const acceptProbeInterval = 50 * time.Millisecond

// AcceptCallback is invoked on the loop goroutine for every inbound
// connection (err == nil, stream != nil) or when the listener gives up
// (err != nil, stream == nil).
type AcceptCallback func(stream *TCPStream, err error)

// Listener accepts inbound TCP connections and hands each one to the loop
// goroutine as a *TCPStream. It is not itself a Stream: a listening socket
// has no read/write state machine, only an accept loop.
type Listener struct {
	loop *Loop
	ln   net.Listener
	cb   AcceptCallback
	stop chan struct{}
	done chan struct{}
}

// Listen starts accepting on ln, delivering every accepted connection (or
// terminal error) to cb on the loop goroutine.
func Listen(loop *Loop, ln net.Listener, cb AcceptCallback) *Listener {
	l := &Listener{
		loop: loop,
		ln:   ln,
		cb:   cb,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		if dl, ok := l.ln.(deadliner); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptProbeInterval))
		}
		conn, err := l.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-l.stop:
			default:
				l.loop.postCross(func() { l.cb(nil, err) })
			}
			return
		}
		l.loop.postCross(func() { l.cb(NewTCPStream(l.loop, conn), nil) })
	}
}

// Close stops accepting and closes the underlying listener. It blocks
// until the accept goroutine has exited.
func (l *Listener) Close() error {
	close(l.stop)
	err := l.ln.Close()
	<-l.done
	return err
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
