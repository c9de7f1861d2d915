package uvloop

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/arrowlake/uvloop/internal/telemetry"
)

const writeProbeInterval = 20 * time.Millisecond

// AllocCallback supplies the buffer a stream reads into. It is called
// exactly once per read attempt, with the loop's suggested size; the
// stream passes back whatever slice the callback returns. A nil or empty
// slice skips the read: the read callback receives ErrNoMemory.
type AllocCallback func(suggestedSize int) []byte

// ReadCallback reports the result of one read attempt: n bytes of buf were
// filled, or err is non-nil (ErrEOF on orderly peer shutdown).
type ReadCallback func(n int, buf []byte, err error)

// bufferedReader is implemented by Poller backends whose readability
// probe may consume bytes into an internal buffer (see poller_netpoll.go);
// a stream's real reads go through it instead of the raw descriptor so no
// probed byte is lost.
type bufferedReader interface {
	Reader(desc Descriptor) *bufio.Reader
}

// writeReq is one queued Write: buf[off:] is what remains to be written.
type writeReq struct {
	Request
	buf []byte
	off int
}

// streamCore is the read/write state machine every concrete stream type
// (TCPStream, PipeStream) embeds: IDLE/READING/READ_STOPPED on the read
// side, orthogonal to WRITABLE/SHUTTING/SHUT on the write side, with an
// in-order write queue and a zero-byte-write fast path.
type streamCore struct {
	Handle

	desc Descriptor

	writeQueue *list[*writeReq]
	armedWrite bool

	shuttingDown bool
	shutDone     bool
	shutdownReq  *Request

	reading   bool
	armedRead bool
	allocCB   AllocCallback
	readCB    ReadCallback
}

// initStreamCore wires s in place; it must be called with the final,
// stable address of the embedding type's streamCore field, since its
// teardown closure captures that address.
func initStreamCore(s *streamCore, loop *Loop, typ HandleType, desc Descriptor) {
	loop.registry.initHandle(&s.Handle, typ, loop)
	s.desc = desc
	s.writeQueue = newList[*writeReq]()
	s.teardown = func() {
		_ = loop.poller.Del(desc)
		s.writeQueue.DrainEach(func(r *writeReq) {
			r.Request.finish(ErrCancelled)
		})
		if s.shutdownReq != nil {
			req := s.shutdownReq
			s.shutdownReq = nil
			req.finish(ErrCancelled)
		}
	}
}

func (s *streamCore) reader() io.Reader {
	if br, ok := s.loop.poller.(bufferedReader); ok {
		return br.Reader(s.desc)
	}
	return s.desc
}

// ReadStart arms the stream for reading: alloc supplies buffers, cb
// reports each read's outcome. Calling ReadStart again while already
// reading just replaces the callbacks.
func (s *streamCore) ReadStart(alloc AllocCallback, cb ReadCallback) error {
	if s.IsClosing() {
		return ErrBadState
	}
	if alloc == nil || cb == nil {
		return ErrInvalidArgument
	}
	s.allocCB = alloc
	s.readCB = cb
	s.reading = true
	if err := s.loop.registry.start(&s.Handle); err != nil {
		return err
	}
	s.armRead()
	return nil
}

// ReadStop disarms reading. The stream may be restarted later with
// ReadStart. Idempotent.
func (s *streamCore) ReadStop() error {
	s.reading = false
	return s.loop.registry.stop(&s.Handle)
}

func (s *streamCore) armRead() {
	if s.armedRead || s.IsClosing() {
		return
	}
	s.armedRead = true
	_ = s.loop.poller.Add(s.desc, EventReadable, s)
}

func (s *streamCore) armWrite() {
	if s.armedWrite || s.IsClosing() {
		return
	}
	s.armedWrite = true
	_ = s.loop.poller.Add(s.desc, EventWritable, s)
}

// onPollEvent implements the loop's poll-event dispatch contract (see
// loop.go's dispatchPollEvent).
func (s *streamCore) onPollEvent(ev PollEvent) {
	if ev.Events&EventReadable != 0 {
		s.armedRead = false
		s.handleReadable(ev.Err)
	}
	if ev.Events&EventWritable != 0 {
		s.armedWrite = false
		s.drainWriteQueue()
	}
}

func (s *streamCore) handleReadable(pollErr error) {
	if !s.reading {
		return
	}
	if pollErr != nil {
		s.invokeRead(0, nil, pollErr)
		return
	}
	_, span := s.loop.tel.Tracer.StartSpan(context.Background(), telemetry.SpanStreamRead)
	span.SetTag(telemetry.TagHandleType, s.Type().String())
	buf := s.allocCB(64 * 1024)
	if len(buf) == 0 {
		span.Finish()
		s.invokeRead(0, buf, ErrNoMemory)
		return
	}
	_ = s.desc.SetReadDeadline(time.Time{})
	n, err := s.reader().Read(buf)
	if n > 0 {
		s.loop.tel.Metrics.Counter(telemetry.StreamBytesReadTotal).Add(float64(n))
	}
	if err == io.EOF {
		err = ErrEOF
	}
	span.Finish()
	s.invokeRead(n, buf, err)
	if err == nil && s.reading {
		s.armRead()
	}
}

func (s *streamCore) invokeRead(n int, buf []byte, err error) {
	if s.readCB != nil {
		s.readCB(n, buf, err)
	}
}

// Write queues buf for writing, trying one immediate, non-blocking-ish
// attempt if nothing is ahead of it in the queue. A zero-length buf
// completes inline with no queueing and no Poller round trip.
func (s *streamCore) Write(buf []byte, cb StatusCallback) (*Request, error) {
	if s.IsClosing() {
		return nil, ErrBadState
	}
	if s.shuttingDown {
		return nil, ErrShuttingDown
	}
	req := &writeReq{buf: buf}
	req.Request.init(s.loop, &s.Handle, ReqWrite, cb)

	if len(buf) == 0 {
		req.Request.finish(nil)
		return &req.Request, nil
	}
	if s.writeQueue.Len() == 0 && s.tryWriteNow(req) {
		return &req.Request, nil
	}
	s.writeQueue.PushBack(req)
	s.armWrite()
	return &req.Request, nil
}

// TryWrite makes a single non-blocking-ish write attempt of buf without
// ever enqueueing it: on success it returns the number of bytes actually
// written (which may be less than len(buf)), and the caller is responsible
// for resubmitting any remainder (typically via Write). It returns
// ErrWouldBlock if no bytes could be written without blocking, and never
// touches the write queue or arms the poller for writability.
func (s *streamCore) TryWrite(buf []byte) (int, error) {
	if s.IsClosing() {
		return 0, ErrBadState
	}
	if s.shuttingDown {
		return 0, ErrShuttingDown
	}
	if len(buf) == 0 {
		return 0, nil
	}
	_, span := s.loop.tel.Tracer.StartSpan(context.Background(), telemetry.SpanStreamWrite)
	span.SetTag(telemetry.TagHandleType, s.Type().String())
	defer span.Finish()

	_ = s.desc.SetWriteDeadline(time.Now().Add(writeProbeInterval))
	n, err := s.desc.Write(buf)
	if n > 0 {
		s.loop.tel.Metrics.Counter(telemetry.StreamBytesWriteTotal).Add(float64(n))
	}
	if err != nil {
		if isTimeout(err) {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

// tryWriteNow attempts one write of req's remaining bytes under a short
// deadline. It returns true if req is fully resolved (completed or failed
// with a hard error) and must not be queued.
func (s *streamCore) tryWriteNow(req *writeReq) bool {
	_, span := s.loop.tel.Tracer.StartSpan(context.Background(), telemetry.SpanStreamWrite)
	span.SetTag(telemetry.TagHandleType, s.Type().String())
	defer span.Finish()

	_ = s.desc.SetWriteDeadline(time.Now().Add(writeProbeInterval))
	n, err := s.desc.Write(req.buf[req.off:])
	if n > 0 {
		req.off += n
		s.loop.tel.Metrics.Counter(telemetry.StreamBytesWriteTotal).Add(float64(n))
	}
	if err != nil {
		if isTimeout(err) {
			return false
		}
		req.Request.finish(err)
		return true
	}
	if req.off >= len(req.buf) {
		req.Request.finish(nil)
		return true
	}
	return false
}

func (s *streamCore) drainWriteQueue() {
	for {
		e := s.writeQueue.Front()
		if e == nil {
			break
		}
		if !s.tryWriteNow(e.Value) {
			s.armWrite()
			return
		}
		s.writeQueue.Remove(e)
	}
	if s.shuttingDown && !s.shutDone {
		s.finishShutdown()
	}
}

// WriteQueueSize reports the bytes still held by the library across all
// queued-but-unwritten requests. It decreases monotonically to zero as
// writes complete.
func (s *streamCore) WriteQueueSize() int {
	total := 0
	s.writeQueue.Each(func(e *listElem[*writeReq]) {
		total += len(e.Value.buf) - e.Value.off
	})
	return total
}

// Shutdown half-closes the write side once any queued writes have
// drained: no more Writes are accepted, cb fires when the shutdown itself
// completes.
func (s *streamCore) Shutdown(cb StatusCallback) (*Request, error) {
	if s.IsClosing() {
		return nil, ErrBadState
	}
	if s.shuttingDown {
		return nil, ErrShuttingDown
	}
	s.shuttingDown = true
	req := &Request{}
	req.init(s.loop, &s.Handle, ReqShutdown, cb)
	s.shutdownReq = req
	if s.writeQueue.Len() == 0 {
		s.finishShutdown()
	}
	return req, nil
}

func (s *streamCore) finishShutdown() {
	s.shutDone = true
	if cw, ok := s.desc.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	if s.shutdownReq != nil {
		req := s.shutdownReq
		s.shutdownReq = nil
		req.finish(nil)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(interface{ Timeout() bool })
	return ok && ne.Timeout()
}
