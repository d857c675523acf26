package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/metrics"
)

// HealthServer provides HTTP liveness, readiness and metrics endpoints
// alongside the gRPC control interface.
type HealthServer struct {
	proc *gwconfig.Processor
	mux  *http.ServeMux
}

// NewHealthServer builds the HTTP mux; proc may be nil for a pure
// liveness check with no readiness semantics.
func NewHealthServer(proc *gwconfig.Processor) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{proc: proc, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start runs the HTTP server, blocking until it exits.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler { return hs.mux }

// HealthResponse is the /health liveness payload: process is alive.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready readiness payload: a configuration has
// been successfully applied at least once.
type ReadyResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Generation *uint64   `json:"generation,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ReadyResponse{Timestamp: time.Now()}
	statusCode := http.StatusOK

	if hs.proc == nil {
		resp.Status = "not ready"
		resp.Message = "processor not initialized"
		statusCode = http.StatusServiceUnavailable
	} else if gen, ok := hs.proc.GetGeneration(); !ok {
		resp.Status = "not ready"
		resp.Message = "no configuration applied yet"
		statusCode = http.StatusServiceUnavailable
	} else {
		g := uint64(gen)
		resp.Status = "ready"
		resp.Generation = &g
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
