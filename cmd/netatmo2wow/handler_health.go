package main

import (
	"encoding/json"
	"net/http"
)

// healthHandler returns server health status
func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "disabled"}
	code := http.StatusOK

	if rm.health != nil {
		if rm.health.IsConnectionHealthy() {
			status["database"] = "ok"
		} else {
			status["status"] = "degraded"
			status["database"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
