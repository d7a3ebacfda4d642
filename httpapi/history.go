package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iotlab/sensorhub/model"
)

// defaultHistoryLimit is the page size applied when the query omits limit.
const defaultHistoryLimit = 100

type historyQuery struct {
	from  int64
	to    int64
	limit int
	page  int
}

func parseHistoryQuery(r *http.Request) (historyQuery, string) {
	q := r.URL.Query()

	from, err := parseInt64(q.Get("from"), 0)
	if err != nil {
		return historyQuery{}, "invalid from"
	}
	to, err := parseInt64(q.Get("to"), 0)
	if err != nil {
		return historyQuery{}, "invalid to"
	}
	limit, err := parseInt(q.Get("limit"), defaultHistoryLimit)
	if err != nil || limit < 0 {
		return historyQuery{}, "invalid limit"
	}
	page, err := parseInt(q.Get("page"), 1)
	if err != nil || page < 1 {
		return historyQuery{}, "invalid page"
	}

	return historyQuery{from: from, to: to, limit: limit, page: page}, ""
}

func (hq historyQuery) matches(ts int64) bool {
	if hq.from > 0 && ts < hq.from {
		return false
	}
	if hq.to > 0 && ts > hq.to {
		return false
	}

	return true
}

// paginate slices one newest-first page out of points.
func paginate[T any](points []T, limit, page int) []T {
	if limit <= 0 {
		return points
	}
	start := (page - 1) * limit
	if start > len(points) {
		start = len(points)
	}
	end := start + limit
	if end > len(points) {
		end = len(points)
	}

	return points[start:end]
}

// taggedPoint is a data point carrying its device id, for the combined
// cross-device listing.
type taggedPoint struct {
	DeviceID string `json:"deviceId"`
	model.DataPoint
}

type combinedHistoryResponse struct {
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
	Points []taggedPoint `json:"points"`
}

// handleCombinedHistory serves buffered history across all devices (or one,
// with ?deviceId=) merged into a single newest-first stream, with the same
// from/to filtering and page/limit pagination as the per-device route.
func (s *Server) handleCombinedHistory(w http.ResponseWriter, r *http.Request) {
	hq, errMsg := parseHistoryQuery(r)
	if errMsg != "" {
		s.respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	ids := s.eng.HistoryDevices()
	if deviceID := r.URL.Query().Get("deviceId"); deviceID != "" {
		ids = []string{deviceID}
	}

	var combined []taggedPoint
	for _, id := range ids {
		for _, p := range s.eng.History(id, 0) {
			if !hq.matches(p.Timestamp) {
				continue
			}
			combined = append(combined, taggedPoint{DeviceID: id, DataPoint: p})
		}
	}

	// Newest first across devices
	sort.Slice(combined, func(i, j int) bool {
		return combined[i].Timestamp > combined[j].Timestamp
	})

	total := len(combined)
	combined = paginate(combined, hq.limit, hq.page)
	if combined == nil {
		combined = []taggedPoint{}
	}

	s.respond(w, http.StatusOK, combinedHistoryResponse{
		Total:  total,
		Page:   hq.page,
		Limit:  hq.limit,
		Points: combined,
	})
}

type historyResponse struct {
	DeviceID string            `json:"deviceId"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Points   []model.DataPoint `json:"points"`
}

// handleDeviceHistory serves one device's buffered history newest first,
// with optional from/to epoch-ms filtering and page/limit pagination.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hq, errMsg := parseHistoryQuery(r)
	if errMsg != "" {
		s.respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	points := s.eng.History(id, 0)

	filtered := points[:0:0]
	for _, p := range points {
		if hq.matches(p.Timestamp) {
			filtered = append(filtered, p)
		}
	}

	// Newest first for the dashboard
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	total := len(filtered)
	filtered = paginate(filtered, hq.limit, hq.page)
	if filtered == nil {
		filtered = []model.DataPoint{}
	}

	s.respond(w, http.StatusOK, historyResponse{
		DeviceID: id,
		Total:    total,
		Page:     hq.page,
		Limit:    hq.limit,
		Points:   filtered,
	})
}

type appendHistoryRequest struct {
	Timestamp   *int64   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (s *Server) handleAppendHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req appendHistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Timestamp == nil || req.Temperature == nil || req.Humidity == nil {
		s.respondError(w, http.StatusBadRequest,
			"Missing required fields: timestamp, temperature, humidity")
		return
	}

	p := model.DataPoint{
		Timestamp:   *req.Timestamp,
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
	}
	s.eng.AppendHistory(id, p)
	s.respond(w, http.StatusOK, p)
}

func parseInt64(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}

	return strconv.ParseInt(s, 10, 64)
}

func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}

	return strconv.Atoi(s)
}
