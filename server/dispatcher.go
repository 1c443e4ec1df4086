// Package server implements the framed TCP request stream: a single dispatcher goroutine owns
// every connection, readers only turn socket input into events, workers attach responses and a
// writer per connection puts them on the wire.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cppla/winsome/utils"
	"github.com/cppla/winsome/workers"
)

const (
	DEFAULT_WRITE_TIMEOUT = 2 * time.Second
	DEFAULT_DRAIN_TIMEOUT = 30 * time.Second
	eventBacklog          = 256
)

// Request is a decoded frame bound to the connection it came from.
type Request struct {
	Conn *Conn
	Op   int
	User string
	// Body is the whole JSON object, header fields included.
	Body json.RawMessage
}

// Handler runs one request to completion and returns the encoded response.
type Handler interface {
	Serve(req *Request) []byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request) []byte

func (f HandlerFunc) Serve(req *Request) []byte { return f(req) }

// Pool is the scheduling side the dispatcher needs. *workers.Pool satisfies it.
type Pool interface {
	Submit(task workers.Task) error
	Shutdown(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr         string
	WriteTimeout time.Duration
	DrainTimeout time.Duration
	// OnClose runs on the dispatcher goroutine after a connection is torn down.
	OnClose func(c *Conn)
}

type eventKind int

const (
	evAccept eventKind = iota
	evFrame
	evClosed
	evListenerFailed
)

type event struct {
	kind    eventKind
	conn    *Conn
	payload []byte
	err     error
}

// Server is the connection dispatcher.
type Server struct {
	opts    Options
	handler Handler
	pool    Pool

	ln     net.Listener
	events chan event
	wake   chan struct{}
	done   chan struct{}

	dirtyMu sync.Mutex
	dirty   map[*Conn]struct{}

	// conns is owned by the dispatcher goroutine.
	conns  map[*Conn]struct{}
	active atomic.Int64
	loops  sync.WaitGroup
}

// New builds a dispatcher that schedules handler calls on pool.
func New(opts Options, handler Handler, pool Pool) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DEFAULT_WRITE_TIMEOUT
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DEFAULT_DRAIN_TIMEOUT
	}
	return &Server{
		opts:    opts,
		handler: handler,
		pool:    pool,
		events:  make(chan event, eventBacklog),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		dirty:   make(map[*Conn]struct{}),
		conns:   make(map[*Conn]struct{}),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.ln = ln
	return ln.Addr(), nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	return int(s.active.Load())
}

// Serve runs the dispatcher loop until ctx is done, then drains the pool,
// flushes pending responses and closes every connection.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	utils.Sugar.Infof("request stream listening on %s", s.ln.Addr())
	go s.accept()

	var loopErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-s.events:
			switch ev.kind {
			case evAccept:
				s.register(ev.conn)
			case evFrame:
				s.dispatch(ev.conn, ev.payload)
			case evClosed:
				s.teardown(ev.conn, ev.err)
			case evListenerFailed:
				loopErr = ev.err
				break loop
			}
		case <-s.wake:
			s.flush()
		}
	}

	s.shutdown()
	return loopErr
}

func (s *Server) accept() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.emit(event{kind: evListenerFailed, err: err})
			return
		}
		s.emit(event{kind: evAccept, conn: newConn(nc, s)})
	}
}

// emit hands an event to the dispatcher unless it is shutting down.
func (s *Server) emit(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		if ev.kind == evAccept {
			_ = ev.conn.nc.Close()
		}
		return false
	}
}

func (s *Server) register(c *Conn) {
	s.conns[c] = struct{}{}
	s.active.Add(1)
	utils.Sugar.Debugf("connection accepted id=%s remote=%s", c.ID(), c.RemoteAddr())
	s.loops.Add(2)
	go s.read(c)
	go func() {
		defer s.loops.Done()
		c.writeLoop(s.opts.WriteTimeout)
	}()
}

func (s *Server) read(c *Conn) {
	defer s.loops.Done()
	for {
		payload, err := ReadFrame(c.nc)
		if err != nil {
			s.emit(event{kind: evClosed, conn: c, err: err})
			return
		}
		if !s.emit(event{kind: evFrame, conn: c, payload: payload}) {
			return
		}
	}
}

type header struct {
	Op   *int   `json:"op"`
	User string `json:"user"`
}

func (s *Server) dispatch(c *Conn, payload []byte) {
	if _, ok := s.conns[c]; !ok {
		return
	}
	var h header
	if err := json.Unmarshal(payload, &h); err != nil || h.Op == nil {
		c.Attach(encode(utils.Error(utils.CodeMalformed, "malformed request")))
		return
	}
	req := &Request{Conn: c, Op: *h.Op, User: h.User, Body: payload}
	if err := s.pool.Submit(func() { c.Attach(s.handler.Serve(req)) }); err != nil {
		utils.Sugar.Warnf("request rejected id=%s op=%d err=%v", c.ID(), req.Op, err)
		c.Attach(encode(utils.Error(utils.CodeServerError, "server busy")))
	}
}

func (s *Server) markDirty(c *Conn) {
	s.dirtyMu.Lock()
	s.dirty[c] = struct{}{}
	s.dirtyMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// flush hands every attached response to its connection's writer. It never blocks on a socket.
func (s *Server) flush() {
	s.dirtyMu.Lock()
	dirty := s.dirty
	s.dirty = make(map[*Conn]struct{})
	s.dirtyMu.Unlock()

	for c := range dirty {
		if _, ok := s.conns[c]; ok {
			c.signal()
		}
	}
}

func (s *Server) teardown(c *Conn, cause error) {
	if _, ok := s.conns[c]; !ok {
		return
	}
	delete(s.conns, c)
	s.active.Add(-1)
	_ = c.close()

	switch {
	case cause == nil, errors.Is(cause, io.EOF), errors.Is(cause, net.ErrClosed):
		utils.Sugar.Debugf("connection closed id=%s", c.ID())
	default:
		utils.Sugar.Infof("connection dropped id=%s err=%v", c.ID(), cause)
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose(c)
	}
}

func (s *Server) shutdown() {
	close(s.done)
	_ = s.ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DrainTimeout)
	defer cancel()
	if err := s.pool.Shutdown(ctx); err != nil {
		utils.Sugar.Warnf("worker pool drain incomplete: %v", err)
	}
	s.flush()
	for c := range s.conns {
		c.stopWriter()
	}
	for c := range s.conns {
		<-c.written
		s.teardown(c, nil)
	}
	s.discardEvents()
	s.loops.Wait()
	utils.Sugar.Info("request stream stopped")
}

// discardEvents drops events queued before shutdown, closing connections never registered.
func (s *Server) discardEvents() {
	for {
		select {
		case ev := <-s.events:
			if ev.kind == evAccept {
				_ = ev.conn.nc.Close()
			}
		default:
			return
		}
	}
}

func encode(body utils.H) []byte {
	b, err := json.Marshal(body)
	if err != nil {
		utils.Sugar.Errorf("encode response: %v", err)
		return []byte(`{"errCode":-13,"errMsg":"internal error"}`)
	}
	return b
}
