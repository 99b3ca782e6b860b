package feeds

import (
	"bytes"
	"io"
	"time"
)

// MockPort implements Porter by replaying canned fixture lines with a fixed
// inter-line delay, simulating a live transport for dev mode and tests.
type MockPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

// NewMockPort replays the given fixture bytes line by line, one line per
// interval. When the fixture is exhausted the port reports EOF.
func NewMockPort(fixture []byte, interval time.Duration) *MockPort {
	r, w := io.Pipe()
	p := &MockPort{reader: r, writer: w}

	go func() {
		defer w.Close()
		for _, line := range bytes.Split(fixture, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return // reader side closed
			}
			if interval > 0 {
				time.Sleep(interval)
			}
		}
	}()

	return p
}

// Read implements io.Reader.
func (p *MockPort) Read(b []byte) (int, error) { return p.reader.Read(b) }

// Close implements io.Closer and unblocks the replay goroutine.
func (p *MockPort) Close() error {
	p.writer.CloseWithError(io.ErrClosedPipe)
	return p.reader.Close()
}
