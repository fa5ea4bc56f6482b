package control

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
)

// DefaultPort is the control port stock plugs listen on.
const DefaultPort = 41234

// Server accepts control connections. Every connection gets its own Framer,
// fed from a receive loop; replies go back on the same connection. Idle
// connections are kept open until the peer or Close ends them.
type Server struct {
	addr string
	d    *Dispatcher

	mu    sync.Mutex
	l     net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(addr string, d *Dispatcher) *Server {
	return &Server{
		addr:  addr,
		d:     d,
		conns: make(map[net.Conn]struct{}),
	}
}

// Listen opens the listening socket. It does nothing if already listening.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.addr, err)
	}
	glog.Infof("Control channel listening on %s", l.Addr())
	s.l = l
	s.wg.Add(1)
	go s.accept(l)
	return nil
}

// Addr is the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

func (s *Server) accept(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				glog.Errorf("Control channel accept: %v", err)
			}
			return
		}
		if !s.track(l, conn) {
			return
		}
	}
}

// track registers conn and starts serving it, unless l has been closed in
// the meantime, in which case conn is closed too.
func (s *Server) track(l net.Listener, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l != l {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	go s.serve(conn)
	return true
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	glog.V(1).Infof("Control connection from %s", conn.RemoteAddr())

	f := NewFramer(func(payload []byte) {
		reply := s.d.Dispatch(payload)
		if reply == nil {
			return
		}
		if _, err := conn.Write(reply); err != nil {
			glog.Warningf("Could not reply to %s: %v", conn.RemoteAddr(), err)
		}
	})
	buf := make([]byte, 1+MaxPayload)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			f.Feed(buf[:n])
		}
		if err != nil {
			if f.Pending() > 0 {
				glog.V(1).Infof("Control connection %s closed with %d bytes of partial frame", conn.RemoteAddr(), f.Pending())
			}
			return
		}
	}
}

// Close stops listening, drops all connections and waits for their
// goroutines.
func (s *Server) Close() error {
	var errs error
	s.mu.Lock()
	if s.l != nil {
		if err := s.l.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		s.l = nil
	}
	for c := range s.conns {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return errs
}
