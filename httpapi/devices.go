package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iotlab/sensorhub/device"
	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.eng.ListDevices())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.eng.GetDevice(id)
	if errors.Is(err, device.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	s.respond(w, http.StatusOK, d)
}

type upsertDeviceRequest struct {
	Name   string             `json:"name"`
	Status model.DeviceStatus `json:"status"`
}

func (s *Server) handleUpsertDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req upsertDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case "", model.StatusOnline, model.StatusOffline:
	default:
		s.respondError(w, http.StatusBadRequest, "status must be online or offline")
		return
	}

	s.respond(w, http.StatusOK, s.eng.UpsertDevice(id, req.Name, req.Status))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.eng.RemoveDevice(id); errors.Is(err, device.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	s.respond(w, http.StatusOK, map[string]string{"id": id})
}

type controlRequest struct {
	Command model.Command `json:"command"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req controlRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Command {
	case model.CommandLEDToggle, model.CommandLEDOn, model.CommandLEDOff:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown command")
		return
	}

	cc, err := s.eng.SendCommand(r.Context(), id, req.Command)
	if errors.Is(err, engine.ErrNoCommandSender) {
		s.respondError(w, http.StatusServiceUnavailable, "no device transport connected")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "command delivery failed")
		return
	}

	s.respond(w, http.StatusOK, cc)
}
