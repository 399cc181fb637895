// Package fakerepl provides scripted nREPL and pREPL servers for tests.
// They speak just enough of each dialect to drive the bridge end to end;
// nothing is evaluated.
package fakerepl

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Handler serves one accepted connection. The connection is closed when the
// handler returns.
type Handler interface {
	Serve(conn net.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn net.Conn)

// Serve calls f(conn).
func (f HandlerFunc) Serve(conn net.Conn) {
	f(conn)
}

// Server is a TCP server bound to a loopback port. Connections live no
// longer than the context passed to Start or a call to Stop.
type Server struct {
	handler  Handler
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server that passes each connection to handler.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// Start listens on an ephemeral loopback port and accepts connections in the
// background. It returns once the listener is ready.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen on tcp: %w", err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)

	// Accept connections in the background
	s.wg.Add(1)
	go s.accept(ctx)

	return nil
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}

	// Drop live connections
	s.cancel()

	// Close the listener
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) accept(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()

			// Tie the connection to the server's lifetime
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()

			s.handler.Serve(conn)
		}()
	}
}
