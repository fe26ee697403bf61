package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rachio/internal/bridges/rachio"
)

// CommandRequest is the body of a command call.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleListDevices returns every device of every account.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID, zones included.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.bridge.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetZone returns a single zone by ID.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	zone, ok := s.bridge.Zone(id)
	if !ok {
		writeNotFound(w, "zone not found")
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleZoneHistory returns the recorded running transitions of a zone,
// newest first. ?limit= bounds the result.
func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.history == nil {
		writeNotFound(w, "zone history is not enabled")
		return
	}
	if _, ok := s.bridge.Zone(id); !ok {
		writeNotFound(w, "zone not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ZoneHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("zone history query failed", "zone_id", id, "error", err)
		writeInternalError(w, "failed to read zone history")
		return
	}
	if runs == nil {
		runs = []rachio.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"zone_id": id, "runs": runs, "count": len(runs)})
}

// handleCommand executes a command against a device or zone and answers
// once the cloud has accepted or refused it.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	cmd := rachio.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   id,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     "api",
		UserID:     userID(r.Context()),
	}

	account, err := s.bridge.Execute(r.Context(), cmd)
	if err != nil {
		code := rachio.ErrorCode(err)
		s.logger.Warn("command failed",
			"command_id", cmd.ID,
			"target", id,
			"command", cmd.Command,
			"code", code,
			"error", err,
		)
		status, apiCode := commandErrorStatus(code)
		writeError(w, status, apiCode, err.Error())
		return
	}

	s.logger.Info("command accepted",
		"command_id", cmd.ID,
		"target", id,
		"command", cmd.Command,
		"account", account,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"command_id": cmd.ID,
		"status":     rachio.AckAccepted,
		"account":    account,
	})
}

// commandErrorStatus maps a bridge error code onto an HTTP status and an
// API error code.
func commandErrorStatus(code string) (int, string) {
	switch code {
	case rachio.ErrCodeInvalidCommand, rachio.ErrCodeInvalidParameters:
		return http.StatusBadRequest, ErrCodeValidation
	case rachio.ErrCodeNotConfigured:
		return http.StatusNotFound, ErrCodeNotFound
	case rachio.ErrCodeRateLimited:
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case rachio.ErrCodeTimeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case rachio.ErrCodeDeviceUnreachable:
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	case rachio.ErrCodeRejected:
		return http.StatusBadGateway, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
