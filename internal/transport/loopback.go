package transport

import (
	"io"
	"sync"
)

// Loopback is an in-memory Conn for tests. Lines fed with Feed are returned
// by ReadLine; everything written is captured for inspection.
type Loopback struct {
	mu     sync.Mutex
	inbox  chan string
	sent   []string
	closed bool
}

// NewLoopback constructs a loopback connection with a buffered inbox.
func NewLoopback() *Loopback {
	return &Loopback{inbox: make(chan string, 64)}
}

// Feed queues a line for the next ReadLine call.
func (l *Loopback) Feed(line string) {
	l.inbox <- line
}

func (l *Loopback) ReadLine() (string, error) {
	line, ok := <-l.inbox
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (l *Loopback) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return io.ErrClosedPipe
	}
	l.sent = append(l.sent, line)
	return nil
}

func (l *Loopback) Open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.inbox)
	}
	return nil
}

// Sent returns a copy of every line written so far.
func (l *Loopback) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.sent))
	copy(out, l.sent)
	return out
}
