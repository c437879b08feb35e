package controlrpc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
)

// Server hosts the Placement service on a listener.
type Server struct {
	svc    *Service
	events *Broadcaster
	server *grpc.Server

	running  atomic.Bool
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer registers svc on a fresh grpc.Server. events may be nil.
func NewServer(svc *Service, events *Broadcaster, opts ...grpc.ServerOption) *Server {
	s := &Server{svc: svc, events: events, server: grpc.NewServer(opts...)}
	s.server.RegisterService(&ServiceDesc, svc)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	if s.running.Load() {
		return fmt.Errorf("control server already running")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background. Tests pass a bufconn listener.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("control server already running")
	}
	s.listener = lis

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[controlrpc] %s listening on %s", ServiceName, lis.Addr())
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) && s.running.Load() {
			monitoring.Logf("[controlrpc] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop ends open Watch streams and then stops gracefully.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.events != nil {
		s.events.Close()
	}
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Logf("[controlrpc] server stopped")
}
