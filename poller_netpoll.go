package uvloop

import (
	"bufio"
	"sync"
	"time"
)

// netPoller is a portable Poller built entirely on the standard library's
// net/os deadline machinery, not a raw epoll/kqueue/IOCP backend (those are
// an OS-specific concern this package treats as abstract, per Poller).
//
// Readability is detected with bufio.Reader.Peek(1): it blocks until at
// least one byte is available (honoring the descriptor's read deadline)
// without discarding it, so the stream layer's subsequent real Read still
// sees that byte. Writability can't be probed without consuming data the
// way Peek does for reads, so a write-armed descriptor is reported ready
// once per arm and the stream layer's own deadline-bound Write attempt is
// the authoritative backpressure signal; a Write that would block simply
// re-arms.
//
// Each armed descriptor gets one dedicated goroutine per direction; Add/Mod
// start it, Del/Close stop it. This mirrors gaio/watcher.go's approach of
// keeping the OS polling mechanism entirely behind the watcher's own
// interface rather than exposing epoll/kqueue to callers.
type netPoller struct {
	mu      sync.Mutex
	regs    map[Descriptor]*netRegistration
	events  chan PollEvent
	wake    chan struct{}
	closeCh chan struct{}
	closed  bool
}

type netRegistration struct {
	desc   Descriptor
	br     *bufio.Reader
	owner  any
	readGen, writeGen int
	stopRead, stopWrite chan struct{}
}

const probeInterval = 50 * time.Millisecond

// NewNetPoller constructs a Poller backed by per-descriptor goroutines
// using the standard library's deadline-based I/O.
func NewNetPoller() Poller {
	return &netPoller{
		regs:    make(map[Descriptor]*netRegistration),
		events:  make(chan PollEvent, 64),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (p *netPoller) reg(desc Descriptor) *netRegistration {
	r, ok := p.regs[desc]
	if !ok {
		r = &netRegistration{desc: desc, br: bufio.NewReader(desc)}
		p.regs[desc] = r
	}
	return r
}

// Reader returns the buffered reader the poller uses to probe desc for
// readability, so stream I/O reads through the same byte stream (any byte
// consumed by Peek stays available for the caller's own Read).
func (p *netPoller) Reader(desc Descriptor) *bufio.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg(desc).br
}

func (p *netPoller) Add(desc Descriptor, events IOEvent, owner any) error {
	return p.Mod(desc, events, owner)
}

func (p *netPoller) Mod(desc Descriptor, events IOEvent, owner any) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPollerClosed
	}
	r := p.reg(desc)
	r.owner = owner

	if events&EventReadable != 0 {
		r.readGen++
		gen := r.readGen
		stop := make(chan struct{})
		r.stopRead = stop
		go p.probeRead(r, gen, stop)
	}
	if events&EventWritable != 0 {
		r.writeGen++
		gen := r.writeGen
		stop := make(chan struct{})
		r.stopWrite = stop
		go p.probeWrite(r, gen, stop)
	}
	p.mu.Unlock()
	return nil
}

func (p *netPoller) Del(desc Descriptor) error {
	p.mu.Lock()
	r, ok := p.regs[desc]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	if r.stopRead != nil {
		close(r.stopRead)
		r.stopRead = nil
	}
	if r.stopWrite != nil {
		close(r.stopWrite)
		r.stopWrite = nil
	}
	delete(p.regs, desc)
	p.mu.Unlock()
	return nil
}

func (p *netPoller) probeRead(r *netRegistration, gen int, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-p.closeCh:
			return
		default:
		}
		_ = r.desc.SetReadDeadline(time.Now().Add(probeInterval))
		_, err := r.br.Peek(1)
		if err == nil {
			p.emit(PollEvent{Owner: r.owner, Events: EventReadable})
			return
		}
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			continue
		}
		p.emit(PollEvent{Owner: r.owner, Events: EventReadable | EventError, Err: err})
		return
	}
}

func (p *netPoller) probeWrite(r *netRegistration, gen int, stop chan struct{}) {
	select {
	case <-stop:
		return
	case <-p.closeCh:
		return
	case <-time.After(time.Millisecond):
	}
	p.emit(PollEvent{Owner: r.owner, Events: EventWritable})
}

func (p *netPoller) emit(ev PollEvent) {
	select {
	case p.events <- ev:
	case <-p.closeCh:
	}
}

func (p *netPoller) Wait(timeout time.Duration) ([]PollEvent, error) {
	var after <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		after = timer.C
	}

	select {
	case <-p.closeCh:
		return nil, ErrPollerClosed
	case ev := <-p.events:
		batch := []PollEvent{ev}
		for {
			select {
			case more := <-p.events:
				batch = append(batch, more)
				continue
			default:
			}
			break
		}
		return batch, nil
	case <-p.wake:
		return nil, nil
	case <-after:
		return nil, nil
	}
}

func (p *netPoller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *netPoller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.mu.Unlock()
	return nil
}

// BackendFD always reports false: this adapter drives readiness entirely
// through deadline-bound standard-library I/O, never a raw OS descriptor.
func (p *netPoller) BackendFD() (int, bool) {
	return 0, false
}
