package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iotlab/sensorhub/threshold"
)

func (s *Server) handleListThresholds(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.eng.ListThresholds())
}

// handleGetThreshold always resolves: devices without a custom entry get the
// defaults.
func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respond(w, http.StatusOK, s.eng.GetThreshold(id))
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u threshold.Update
	if err := decodeJSON(r, &u); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.eng.SetThreshold(id, u)
	var verr *threshold.ValidationError
	if errors.As(err, &verr) {
		s.respondError(w, http.StatusBadRequest, verr.Msg)
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "threshold update failed")
		return
	}

	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleResetThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respond(w, http.StatusOK, s.eng.ResetThreshold(id))
}

func (s *Server) handleRemoveThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.eng.RemoveThreshold(id) {
		s.respondError(w, http.StatusNotFound, "no custom threshold for device")
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"deviceId": id})
}
