package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one client connection. Workers only attach responses; its writer goroutine
// puts them on the wire when the dispatcher signals it.
type Conn struct {
	id     string
	nc     net.Conn
	server *Server

	mu      sync.Mutex
	pending [][]byte
	closed  bool

	kick     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	written  chan struct{}
}

func newConn(nc net.Conn, s *Server) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		nc:      nc,
		server:  s,
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		written: make(chan struct{}),
	}
}

// ID identifies the connection for the session registry.
func (c *Conn) ID() string { return c.id }

// RemoteAddr is the peer address.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Attach queues a response frame and wakes the dispatcher. Attaching to a closed connection is a no-op.
func (c *Conn) Attach(payload []byte) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, payload)
	c.mu.Unlock()
	c.server.markDirty(c)
}

// takePending removes and returns the attached frames.
func (c *Conn) takePending() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// signal wakes the writer without waiting for it.
func (c *Conn) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// writeLoop owns every write on nc. It drains what is pending once more on stop.
func (c *Conn) writeLoop(timeout time.Duration) {
	defer close(c.written)
	for {
		select {
		case <-c.kick:
			if err := c.writePending(timeout); err != nil {
				c.server.emit(event{kind: evClosed, conn: c, err: err})
				return
			}
		case <-c.quit:
			_ = c.writePending(timeout)
			return
		}
	}
}

func (c *Conn) writePending(timeout time.Duration) error {
	frames := c.takePending()
	if len(frames) == 0 {
		return nil
	}
	_ = c.nc.SetWriteDeadline(time.Now().Add(timeout))
	for _, f := range frames {
		if err := WriteFrame(c.nc, f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) stopWriter() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Conn) close() error {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
	c.stopWriter()
	return c.nc.Close()
}
