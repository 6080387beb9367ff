package transport

// Conn is a line-oriented, half-duplex link to the radio bridge. ReadLine
// blocks until a full line arrives; WriteLine must not block for long.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Open() bool
	Close() error
}
