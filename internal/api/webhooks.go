package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-rachio/internal/bridges/rachio"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/events"
)

// handleWebhook accepts an event posted by the Rachio cloud and hands it to
// the bridge.
//
// Status codes:
//   - 200: event handled (applied, duplicate or ignored)
//   - 400: body is not a valid event
//   - 404: no account owns the event
//   - 413: body exceeds the size limit
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "body too large")
			return
		}
		writeBadRequest(w, "failed to read body")
		return
	}

	outcome, err := s.bridge.HandleWebhook(r.Context(), body)
	switch {
	case err == nil:
		s.logger.Debug("webhook handled", "outcome", outcome.String(), "bytes", len(body))
		writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome.String()})
	case errors.Is(err, events.ErrMalformedEvent):
		writeBadRequest(w, "malformed event")
	case errors.Is(err, rachio.ErrNoConnection):
		writeNotFound(w, "no account owns this event")
	default:
		s.logger.Error("webhook handling failed", "error", err)
		writeInternalError(w, "failed to handle event")
	}
}

// isMaxBytesError reports whether a body read hit the size limit.
func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
