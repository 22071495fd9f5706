package lambda

import (
	"io"
	"sync"
)

// bodyReader yields the event body once and then io.EOF. Unlike a
// strings.Reader it cannot be seeked back to the start.
type bodyReader struct {
	mu   sync.Mutex
	data string
	off  int
}

func newBodyReader(body string) *bodyReader {
	return &bodyReader{data: body}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.off >= len(b.data) {
		b.data = ""
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}
