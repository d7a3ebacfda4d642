package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iotlab/sensorhub/alert"
	"github.com/iotlab/sensorhub/model"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := alert.Filter{
		DeviceID: q.Get("deviceId"),
		Type:     model.AlertType(q.Get("type")),
	}
	if v := q.Get("acknowledged"); v != "" {
		ack, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid acknowledged")
			return
		}
		f.Acknowledged = &ack
	}

	s.respond(w, http.StatusOK, s.eng.ListAlerts(f))
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := s.eng.GetAlert(id)
	if errors.Is(err, alert.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "alert not found")
		return
	}

	s.respond(w, http.StatusOK, a)
}

// handleCreateAlert inserts an alert unconditionally, bypassing evaluation
// and dedup. Administrative use only.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var a model.Alert
	if err := decodeJSON(r, &a); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.DeviceID == "" || a.Type == "" {
		s.respondError(w, http.StatusBadRequest, "deviceId and type are required")
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp == 0 {
		a.Timestamp = time.Now().UnixMilli()
	}

	s.eng.AddAlert(a)
	s.respond(w, http.StatusCreated, a)
}

// handleAckAlert is idempotent and a silent no-op on unknown ids, matching
// the store's acknowledge semantics.
func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, ok := s.eng.AcknowledgeAlert(id)
	if !ok {
		s.respond(w, http.StatusOK, nil)
		return
	}

	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleClearAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.eng.ClearAlert(id); errors.Is(err, alert.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "alert not found")
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"id": id})
}
