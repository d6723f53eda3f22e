package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// CatalogService is the health service name that tracks catalog
// availability. The empty service name tracks the process itself.
const CatalogService = "cryptodash.Catalog"

// HealthService reports SERVING for CatalogService once a catalog is
// loaded, and NOT_SERVING before.
type HealthService struct {
	srv *health.Server
}

// NewHealthService creates a health service with the process marked
// SERVING and the catalog NOT_SERVING.
func NewHealthService() *HealthService {
	srv := health.NewServer()
	srv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.SetServingStatus(CatalogService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthService{srv: srv}
}

// Register attaches the health service to s.
func (h *HealthService) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.srv)
}

// SetCatalogLoaded flips the catalog status on coins > 0.
func (h *HealthService) SetCatalogLoaded(coins int) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if coins > 0 {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(CatalogService, status)
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthService) Shutdown() {
	h.srv.Shutdown()
}
