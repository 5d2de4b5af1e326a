package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"

	"droneswarm/internal/logging"
)

// DefaultTCPAddr is the listen address of the command socket.
const DefaultTCPAddr = ":12345"

const maxLine = 1 << 20

// TCPServer serves the command socket: one JSON command per line in, status
// messages out.
type TCPServer struct {
	addr     string
	hub      *Hub
	dispatch Dispatcher

	ln    net.Listener
	conns conns
}

// NewTCPServer creates a server bound to addr once Listen is called.
func NewTCPServer(addr string, hub *Hub, d Dispatcher) *TCPServer {
	if addr == "" {
		addr = DefaultTCPAddr
	}
	return &TCPServer{addr: addr, hub: hub, dispatch: d}
}

// Listen binds the socket.
func (s *TCPServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts clients until ctx is cancelled, then closes every
// connection and waits for their handlers.
func (s *TCPServer) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	log := logging.FromContext(ctx)
	log.Info("command socket listening", "addr", s.ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = s.ln.Close()
		s.conns.closeAll()
	})
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.conns.closeAll()
				s.conns.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.conns.add(conn)
		go s.serveConn(ctx, conn)
	}
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.conns.done(conn)
	id, out, unregister := s.hub.Register()
	log := logging.FromContext(ctx).With("client", id, "remote", conn.RemoteAddr().String())
	log.Info("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range out {
			if _, err := conn.Write(msg); err != nil {
				log.Debug("client write failed", "err", err)
				_ = conn.Close()
				for range out {
				}
				return
			}
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		s.hub.handle(ctx, s.dispatch, id, "tcp", append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		log.Debug("client read ended", "err", err)
	}
	unregister()
	<-writerDone
	_ = conn.Close()
	log.Info("client disconnected")
}
