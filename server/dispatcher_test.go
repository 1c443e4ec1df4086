package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/workers"
)

type echoReply struct {
	ErrCode int    `json:"errCode"`
	ErrMsg  string `json:"errMsg"`
	Op      int    `json:"op"`
	User    string `json:"user"`
}

func startServer(t *testing.T, h Handler, onClose func(*Conn)) (string, context.CancelFunc, chan error) {
	t.Helper()
	pool := workers.New(workers.Options{CoreWorkers: 2, MaxWorkers: 4, QueueSize: 16})
	s := New(Options{Addr: "127.0.0.1:0", OnClose: onClose}, h, pool)
	addr, err := s.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return addr.String(), cancel, done
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	return c
}

func roundTrip(t *testing.T, c net.Conn, req string) echoReply {
	t.Helper()
	if err := WriteFrame(c, []byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload, err := ReadFrame(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var r echoReply
	if err := json.Unmarshal(payload, &r); err != nil {
		t.Fatalf("decode %q: %v", payload, err)
	}
	return r
}

var echo = HandlerFunc(func(req *Request) []byte {
	b, _ := json.Marshal(echoReply{Op: req.Op, User: req.User})
	return b
})

func TestDispatcherServesRequests(t *testing.T) {
	addr, _, _ := startServer(t, echo, nil)
	c := dial(t, addr)
	for i := 0; i < 5; i++ {
		r := roundTrip(t, c, `{"op":7,"user":"alice"}`)
		if r.ErrCode != 0 || r.Op != 7 || r.User != "alice" {
			t.Fatalf("unexpected reply %+v", r)
		}
	}
}

func TestDispatcherMalformedFrame(t *testing.T) {
	addr, _, _ := startServer(t, echo, nil)
	c := dial(t, addr)
	if r := roundTrip(t, c, `not json`); r.ErrCode != -11 {
		t.Fatalf("expected -11, got %+v", r)
	}
	if r := roundTrip(t, c, `{"user":"alice"}`); r.ErrCode != -11 {
		t.Fatalf("missing op expected -11, got %+v", r)
	}
	// connection stays usable
	if r := roundTrip(t, c, `{"op":3,"user":"bob"}`); r.Op != 3 {
		t.Fatalf("unexpected reply %+v", r)
	}
}

func TestDispatcherManyClients(t *testing.T) {
	addr, _, _ := startServer(t, echo, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer c.Close()
			_ = c.SetDeadline(time.Now().Add(5 * time.Second))
			if err := WriteFrame(c, []byte(`{"op":1,"user":"u"}`)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			if _, err := ReadFrame(c); err != nil {
				t.Errorf("read: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestDispatcherTeardownOnEOF(t *testing.T) {
	closed := make(chan string, 1)
	addr, _, _ := startServer(t, echo, func(c *Conn) { closed <- c.ID() })
	c := dial(t, addr)
	_ = roundTrip(t, c, `{"op":1,"user":"alice"}`)
	c.Close()
	select {
	case id := <-closed:
		if id == "" {
			t.Fatalf("empty connection id")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("OnClose not called")
	}
}

func TestShutdownFlushesInFlightResponses(t *testing.T) {
	started := make(chan struct{})
	slow := HandlerFunc(func(req *Request) []byte {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return []byte(`{"errCode":0,"errMsg":"late"}`)
	})
	addr, cancel, done := startServer(t, slow, nil)
	c := dial(t, addr)
	if err := WriteFrame(c, []byte(`{"op":1,"user":"alice"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	<-started
	cancel()

	payload, err := ReadFrame(c)
	if err != nil {
		t.Fatalf("expected the in-flight response before close: %v", err)
	}
	if string(payload) != `{"errCode":0,"errMsg":"late"}` {
		t.Fatalf("unexpected payload %q", payload)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve returned %v", err)
	}
	done <- nil // let cleanup observe a stopped server
}

func TestAttachAfterCloseIsDropped(t *testing.T) {
	s := New(Options{}, echo, workers.New(workers.Options{}))
	a, b := net.Pipe()
	defer b.Close()
	c := newConn(a, s)
	_ = c.close()
	c.Attach([]byte("x"))
	if len(c.takePending()) != 0 {
		t.Fatalf("attach on closed connection kept the frame")
	}
	s.dirtyMu.Lock()
	n := len(s.dirty)
	s.dirtyMu.Unlock()
	if n != 0 {
		t.Fatalf("closed connection marked dirty")
	}
}

func TestLoginRacingDisconnectKeepsNoSession(t *testing.T) {
	sessions := store.NewSessions()
	tornDown := make(chan struct{})
	results := make(chan error, 1)
	login := HandlerFunc(func(req *Request) []byte {
		<-tornDown
		results <- sessions.Login(req.User, req.Conn)
		return []byte(`{"errCode":0,"errMsg":"success"}`)
	})
	addr, _, _ := startServer(t, login, func(c *Conn) {
		sessions.EndByHandle(c)
		close(tornDown)
	})

	c := dial(t, addr)
	if err := WriteFrame(c, []byte(`{"op":1,"user":"alice"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.Close()

	select {
	case err := <-results:
		if !errors.Is(err, store.ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("login never ran")
	}
	if sessions.Online("alice") || sessions.Count() != 0 {
		t.Fatalf("session bound to a closed connection")
	}
}

func TestStalledReaderDoesNotBlockOthers(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 512<<10)
	h := HandlerFunc(func(req *Request) []byte {
		if req.Op == 1 {
			return big
		}
		b, _ := json.Marshal(echoReply{Op: req.Op, User: req.User})
		return b
	})
	pool := workers.New(workers.Options{CoreWorkers: 2, MaxWorkers: 4, QueueSize: 128})
	s := New(Options{Addr: "127.0.0.1:0", WriteTimeout: 3 * time.Second}, h, pool)
	addr, err := s.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// stalled never reads, so its writes back up once the socket buffers fill
	stalled := dial(t, addr.String())
	for i := 0; i < 64; i++ {
		if err := WriteFrame(stalled, []byte(`{"op":1,"user":"slow"}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	c := dial(t, addr.String())
	for i := 0; i < 5; i++ {
		start := time.Now()
		if r := roundTrip(t, c, `{"op":2,"user":"fast"}`); r.Op != 2 {
			t.Fatalf("unexpected reply %+v", r)
		}
		if d := time.Since(start); d > time.Second {
			t.Fatalf("round trip took %v behind a stalled client", d)
		}
	}
	stalled.Close()
}
