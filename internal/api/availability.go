package api

import (
	"fmt"
	"net/http"
	"time"

	"prenota/internal/models"
	"prenota/internal/schedule"
)

// RangeRequest is the body of POST /api/services/{id}/availability/range.
type RangeRequest struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
	OnlyOpen  bool   `json:"only_open,omitempty"`
}

// RangeResponse lists one result per date of the period.
type RangeResponse struct {
	ServiceID int64             `json:"service_id"`
	Days      []schedule.Result `json:"days"`
	Period    struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

// evaluationTime returns the now query parameter, or the server clock.
func (s *HTTPServer) evaluationTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("now")
	if raw == "" {
		return s.now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid now; expected RFC3339")
	}
	return t, nil
}

func queryDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}

func onlyOpen(r *http.Request) bool {
	switch r.URL.Query().Get("only_open") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// GET /api/services/{id}/availability?date=YYYY-MM-DD[&now=RFC3339][&only_open=1]
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	date, err := queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.avail.GetAvailableSlots(r.Context(), serviceID, date, now)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if onlyOpen(r) {
		res = schedule.OnlyOpen(res)
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/services/{id}/availability/range
func (s *HTTPServer) handleAvailabilityRange(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	var req RangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, end, err := validateRange(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days, err := s.avail.GetAvailabilityRange(r.Context(), serviceID, start, end, now)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.OnlyOpen {
		for i := range days {
			days[i] = schedule.OnlyOpen(days[i])
		}
	}

	resp := RangeResponse{ServiceID: serviceID, Days: days}
	resp.Period.Start = req.StartDate
	resp.Period.End = req.EndDate
	writeJSON(w, http.StatusOK, resp)
}

func validateRange(req *RangeRequest) (start, end time.Time, err error) {
	if req.StartDate == "" || req.EndDate == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date and end_date are required")
	}
	start, err = models.ParseDate(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format; expected YYYY-MM-DD")
	}
	end, err = models.ParseDate(req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format; expected YYYY-MM-DD")
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must be before or equal to end_date")
	}
	return start, end, nil
}

// GET /api/restaurants/{id}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleRestaurantAvailability(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid restaurant id")
		return
	}
	date, err := queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.avail.GetRestaurantAvailability(r.Context(), restaurantID, date, now)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/services/{id}/slots/{start}?date=YYYY-MM-DD
func (s *HTTPServer) handleSlotDetails(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	start, err := models.ParseClock(r.PathValue("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot start; expected HH:MM")
		return
	}
	date, err := queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := s.avail.GetSlotDetails(r.Context(), serviceID, date, start, now)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}
