// Package api hosts the cryptodash server process: the HTTP API and the
// admin gRPC server with the standard health service.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// shutdownTimeout bounds the graceful stop of both listeners.
const shutdownTimeout = 10 * time.Second

// Server runs the HTTP and gRPC listeners together.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	health   *HealthService
	log      *zap.Logger
}

// NewServer creates a Server serving handler on httpAddr and the health
// service on grpcAddr.
func NewServer(httpAddr, grpcAddr string, handler http.Handler, health *HealthService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gs := grpc.NewServer()
	health.Register(gs)

	return &Server{
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		http: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:   gs,
		health: health,
		log:    log.Named("api"),
	}
}

// ListenAndServe starts both listeners and blocks until ctx is cancelled
// or one of them fails. It shuts both down before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.httpAddr)
	}
	grpcLn, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLn.Close()
		return errors.Wrapf(err, "listening on %s", s.grpcAddr)
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs on already-open listeners.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http listening", zap.String("addr", httpLn.Addr().String()))
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc listening", zap.String("addr", grpcLn.Addr().String()))
		return errors.Wrap(s.grpc.Serve(grpcLn), "grpc server")
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	err := s.http.Shutdown(ctx)

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.log.Info("servers stopped")
	return errors.Wrap(err, "http shutdown")
}
