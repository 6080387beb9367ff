package transport

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	serial "go.bug.st/serial.v1"
)

// SerialConn wraps a serial port with buffered line framing.
type SerialConn struct {
	port    serial.Port
	reader  *bufio.Reader
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Dial opens the named serial port at the given baud rate.
func Dial(portName string, baudRate int) (*SerialConn, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &SerialConn{port: port, reader: bufio.NewReader(port)}, nil
}

// ReadLine blocks until one newline-terminated frame arrives and returns it
// without the trailing newline.
func (c *SerialConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes one frame followed by a newline.
func (c *SerialConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return fmt.Errorf("serial port closed")
	}
	_, err := c.port.Write([]byte(line + "\n"))
	return err
}

// Open reports whether the port is still usable.
func (c *SerialConn) Open() bool {
	return !c.closed.Load()
}

// Close shuts the port down. Safe to call more than once.
func (c *SerialConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.port.Close()
}
