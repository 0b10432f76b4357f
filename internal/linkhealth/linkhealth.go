// Package linkhealth publishes the radio link state through the standard
// gRPC health-checking protocol, so ground-support tooling can probe the
// radio service with grpc_health_probe.
package linkhealth

import (
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name reporting the radio read loop.
const Service = "flight.radio"

// Server serves the gRPC health service. It implements comms.LinkObserver.
type Server struct {
	health *health.Server
	server *grpc.Server

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer returns a Server reporting NOT_SERVING until the link comes up.
func NewServer() *Server {
	s := &Server{
		health: health.NewServer(),
		server: grpc.NewServer(),
	}
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// LinkStateChanged records whether the radio read loop is running.
func (s *Server) LinkStateChanged(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	log.Printf("[linkhealth] radio link %s", status)
	s.health.SetServingStatus(Service, status)
	s.health.SetServingStatus("", status)
}

// Health returns the underlying health service.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[linkhealth] gRPC health service listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil {
			log.Printf("[linkhealth] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
}
