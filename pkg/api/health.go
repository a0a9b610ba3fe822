package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/0xmhha/chainprobe/pkg/api/websocket"
	"github.com/0xmhha/chainprobe/pkg/search"
)

const healthCheckTimeout = 5 * time.Second

// DetailedHealth is the body of the /health endpoint
type DetailedHealth struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Chain     *ComponentHealth `json:"chain,omitempty"`
	Searches  SearchHealth     `json:"searches"`
	WebSocket *WebSocketHealth `json:"websocket,omitempty"`
}

// ComponentHealth represents the health of a component
type ComponentHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency string                 `json:"latency,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SearchHealth reports the background search registry
type SearchHealth struct {
	Running int `json:"running"`
}

// WebSocketHealth reports progress subscribers
type WebSocketHealth struct {
	Clients int `json:"clients"`
}

// HealthChecker reports the health of the search service and its node connection
type HealthChecker struct {
	service   *search.Service
	hub       *websocket.Hub
	version   string
	startTime time.Time
}

// NewHealthChecker creates a new health checker. hub may be nil.
func NewHealthChecker(svc *search.Service, hub *websocket.Hub, version string) *HealthChecker {
	return &HealthChecker{
		service:   svc,
		hub:       hub,
		version:   version,
		startTime: time.Now(),
	}
}

// GetDetailedHealth returns comprehensive health information
func (hc *HealthChecker) GetDetailedHealth(ctx context.Context) DetailedHealth {
	health := DetailedHealth{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Version:   hc.version,
		Searches:  SearchHealth{Running: hc.service.Running()},
	}

	if chain := hc.checkChain(ctx); chain != nil {
		health.Chain = chain
		if chain.Status != "healthy" {
			health.Status = "unhealthy"
		}
	}

	if hc.hub != nil {
		health.WebSocket = &WebSocketHealth{Clients: hc.hub.ClientCount()}
	}

	return health
}

// checkChain asks the node for its heights. It returns nil when no node client is configured.
func (hc *HealthChecker) checkChain(ctx context.Context) *ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	info, err := hc.service.ChainInfo(ctx)
	latency := time.Since(start)

	if errors.Is(err, search.ErrNoNode) {
		return nil
	}
	if err != nil {
		return &ComponentHealth{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}
	return &ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
		Details: map[string]interface{}{
			"name":             info.Name,
			"spec_name":        info.SpecName,
			"spec_version":     info.SpecVersion,
			"latest_height":    info.LatestHeight,
			"finalized_height": info.FinalizedHeight,
		},
	}
}

// LivenessHandler returns 200 while the process is alive
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// DetailedHealthHandler serves GetDetailedHealth, with 503 when the node is unreachable
func (hc *HealthChecker) DetailedHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.GetDetailedHealth(r.Context())

		status := http.StatusOK
		if health.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
