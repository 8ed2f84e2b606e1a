package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/gorilla/mux"
)

// getObservationsHandler returns archived observations of one device
// Query params:
//   - start: start time (RFC3339 or Unix seconds)
//   - end: end time (RFC3339 or Unix seconds)
//   - limit: max number of results (default: 100, max: 10000)
//   - order: sort order (asc/desc, default: desc)
func (rm *RouteManager) getObservationsHandler(w http.ResponseWriter, r *http.Request) {
	if rm.store == nil {
		http.Error(w, "Archive is disabled", http.StatusNotFound)
		return
	}

	params, err := parseObservationQueryParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rm.store.GetObservations(r.Context(), params)
	if err != nil {
		rm.logger.WithError(err).WithField("device_id", params.DeviceID).Error("Failed to query observations")
		http.Error(w, "Failed to query observations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func parseObservationQueryParams(r *http.Request) (models.ObservationQueryParams, error) {
	q := r.URL.Query()
	params := models.ObservationQueryParams{
		DeviceID: mux.Vars(r)["id"],
		Limit:    100,
		Order:    "desc",
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return params, err
		}
		params.Limit = l
	}

	if order := q.Get("order"); order != "" {
		params.Order = order
	}

	if s := q.Get("start"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return params, err
		}
		params.StartTime = &t
	}

	if s := q.Get("end"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return params, err
		}
		params.EndTime = &t
	}

	return params, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
