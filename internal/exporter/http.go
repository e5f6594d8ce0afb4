package exporter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/edgewatt/powerexporter/internal/broker"
	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
)

const (
	// maxEnableBody caps the enable payload. A full metrics table is a
	// few KiB, so 100KiB leaves plenty of headroom.
	maxEnableBody = 100 << 10
	// maxEnableEntries caps how many metrics one request may toggle.
	maxEnableEntries = 1000
)

// ManagementHandler serves the management surface: the metrics
// registry, configuration reload, health and on-demand device reads.
func (s *Service) ManagementHandler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/metrics/list", s.handleMetricsList).Methods(http.MethodGet)
	router.HandleFunc("/metrics/enable", s.handleMetricsEnable).Methods(http.MethodPost)
	router.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	router.HandleFunc("/devices/{id}/metrics", s.handleDeviceMetrics).Methods(http.MethodGet)

	return router
}

func (s *Service) handleMetricsList(w http.ResponseWriter, _ *http.Request) {
	table, deviceType, source := s.MetricsList()

	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":     table,
		"device_type": deviceType,
		"source":      source,
	})
}

func (s *Service) handleMetricsEnable(w http.ResponseWriter, r *http.Request) {
	errFactory := errors.New()
	r.Body = http.MaxBytesReader(w, r.Body, maxEnableBody)

	var updates map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.Warn().Err(errFactory.Wrap(ErrBodyTooLarge, err)).Msg("Rejecting oversized enable request")
			writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)

			return
		}

		writeError(w, "Request body must map metric names to booleans", http.StatusBadRequest)

		return
	}

	if len(updates) > maxEnableEntries {
		logger.Warn().Err(errFactory.WithData(ErrTooManyEntries, len(updates))).Msg("Rejecting enable request")
		writeError(w, "Too many metrics in one request", http.StatusBadRequest)

		return
	}

	applied, table := s.EnableMetrics(updates)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"updated": applied,
		"metrics": table,
	})
}

func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	source, count, err := s.Reload(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"source":        source,
		"metrics_count": count,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.broker.Devices()

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Service) handleDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	samples, err := s.ReadDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, err.Error(), deviceErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"metrics":   samples,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// deviceErrorStatus maps broker failures onto HTTP statuses: an unknown
// device is the caller's mistake, a silent or vanished device is the
// device's.
func deviceErrorStatus(err error) int {
	var appErr errors.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code() {
	case broker.ErrDeviceNotConnected:
		return http.StatusNotFound
	case broker.ErrRequestTimeout:
		return http.StatusGatewayTimeout
	case broker.ErrConnectionLost:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]any{
		"message": message,
		"status":  status,
	})
}
