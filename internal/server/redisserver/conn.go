package redisserver

import (
	"bufio"
	"net"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/kvgate-go/internal/core/admission"
	"github.com/yndnr/kvgate-go/internal/core/auth"
)

// monitorQueueSize bounds the lines buffered for a MONITOR connection.
const monitorQueueSize = 1024

// Conn is a single client connection. Everything except the monitor queue
// is owned by the connection's goroutine.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	out     *OutputBuffer

	id    string
	addr  string
	state auth.State

	monitorCh chan string
	closed    atomic.Bool
}

var _ admission.Client = (*Conn)(nil)

func newConn(c net.Conn, state auth.State, maxOutput int) *Conn {
	return &Conn{
		netConn:   c,
		br:        bufio.NewReader(c),
		out:       NewOutputBuffer(maxOutput),
		id:        ulid.Make().String(),
		addr:      c.RemoteAddr().String(),
		state:     state,
		monitorCh: make(chan string, monitorQueueSize),
	}
}

func (c *Conn) ID() string                { return c.id }
func (c *Conn) Addr() string              { return c.addr }
func (c *Conn) AuthState() auth.State     { return c.state }
func (c *Conn) SetAuthState(s auth.State) { c.state = s }
func (c *Conn) Output() *OutputBuffer     { return c.out }
func (c *Conn) RemoteAddr() net.Addr      { return c.netConn.RemoteAddr() }

// Deliver queues a monitor line. It never blocks; a full queue drops the
// line.
func (c *Conn) Deliver(line string) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.monitorCh <- line:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// ip returns the host part of the peer address.
func (c *Conn) ip() string {
	host, _, err := net.SplitHostPort(c.addr)
	if err != nil {
		return c.addr
	}
	return host
}
