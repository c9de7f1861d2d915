package uvloop

import "os"

// PipeStream adapts one end of an os.Pipe() (or any *os.File supporting
// read/write deadlines) into a loop-driven Stream.
type PipeStream struct {
	streamCore
	file *os.File
}

// NewPipeStream binds file to loop. The stream takes ownership of file:
// closing the stream's handle closes file too.
func NewPipeStream(loop *Loop, file *os.File) *PipeStream {
	s := &PipeStream{file: file}
	initStreamCore(&s.streamCore, loop, HandlePipe, file)
	inner := s.teardown
	s.teardown = func() {
		inner()
		_ = file.Close()
	}
	return s
}

// File returns the underlying *os.File.
func (s *PipeStream) File() *os.File { return s.file }
