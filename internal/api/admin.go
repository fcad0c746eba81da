package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"prenota/internal/models"
)

// VersionRequest is the body for creating or updating a schedule version. A create
// must carry all seven weekly rows; the slot policy is optional. Updates ignore both.
type VersionRequest struct {
	EffectiveFrom string              `json:"effective_from"`
	EffectiveTo   *string             `json:"effective_to,omitempty"`
	State         models.VersionState `json:"state,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	WeeklyDays    []models.WeeklyDay  `json:"weekly_days,omitempty"`
	SlotPolicy    *models.SlotPolicy  `json:"slot_policy,omitempty"`
}

func (req *VersionRequest) version() (*models.Version, error) {
	from, err := models.ParseDate(req.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_from; expected YYYY-MM-DD")
	}
	v := &models.Version{EffectiveFrom: from, State: req.State, Notes: req.Notes}
	if req.EffectiveTo != nil && *req.EffectiveTo != "" {
		to, err := models.ParseDate(*req.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_to; expected YYYY-MM-DD")
		}
		v.EffectiveTo = &to
	}
	return v, nil
}

// ExceptionRequest is the body of POST /api/versions/{id}/exceptions. Start and End
// are required for PARTIAL_CLOSURE and HOURS_OVERRIDE and ignored for FULL_CLOSURE.
type ExceptionRequest struct {
	Date  string               `json:"exception_date"`
	Type  models.ExceptionType `json:"exception_type"`
	Mode  models.ExceptionMode `json:"mode"`
	Start *models.Clock        `json:"start,omitempty"`
	End   *models.Clock        `json:"end,omitempty"`
	Note  string               `json:"note,omitempty"`
}

func (req *ExceptionRequest) exception(versionID int64) (*models.Exception, error) {
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid exception_date; expected YYYY-MM-DD")
	}
	if req.Type == "" {
		req.Type = models.ExceptionCustom
	}

	var e models.Exception
	switch req.Mode {
	case models.ModeFullClosure:
		e = models.NewFullClosure(date, req.Type, req.Note)
	case models.ModePartialClosure, models.ModeHoursOverride:
		if req.Start == nil || req.End == nil {
			return nil, fmt.Errorf("start and end are required for %s", req.Mode)
		}
		if req.Mode == models.ModePartialClosure {
			e = models.NewPartialClosure(date, req.Type, *req.Start, *req.End, req.Note)
		} else {
			e = models.NewHoursOverride(date, req.Type, *req.Start, *req.End, req.Note)
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
	e.VersionID = versionID
	return &e, nil
}

// GET /api/services/{id}/versions[?active=1]
func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	var (
		versions []models.Version
		err      error
	)
	if r.URL.Query().Get("active") != "" {
		versions, err = s.admin.ActiveVersions(r.Context(), serviceID)
	} else {
		versions, err = s.admin.ListVersions(r.Context(), serviceID)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if versions == nil {
		versions = []models.Version{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// POST /api/services/{id}/versions
func (s *HTTPServer) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	var req VersionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	v, err := req.version()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v.ServiceID = serviceID

	if err := s.admin.CreateVersion(r.Context(), v, req.WeeklyDays, req.SlotPolicy); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GET /api/versions/{id}
func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	v, err := s.admin.GetVersion(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// PUT /api/versions/{id}
func (s *HTTPServer) handleUpdateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	var req VersionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	v, err := req.version()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v.ID = id

	if err := s.admin.UpdateVersion(r.Context(), v); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// POST /api/versions/{id}/archive
func (s *HTTPServer) handleArchiveVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	v, err := s.admin.ArchiveVersion(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /api/versions/{id}/weekly
func (s *HTTPServer) handleWeeklySchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	week, err := s.admin.WeeklySchedule(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// PUT /api/versions/{id}/weekly/{day}; day is 0 (Sunday) to 6 (Saturday).
func (s *HTTPServer) handleUpdateWeeklyDay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil || day < int(time.Sunday) || day > int(time.Saturday) {
		writeError(w, http.StatusBadRequest, "day must be 0-6")
		return
	}

	var d models.WeeklyDay
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d.VersionID = id
	d.DayOfWeek = time.Weekday(day)

	if err := s.admin.UpdateWeeklyDay(r.Context(), &d); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/versions/{id}/policy
func (s *HTTPServer) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	p, err := s.admin.GetSlotPolicy(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PUT /api/versions/{id}/policy
func (s *HTTPServer) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	var p models.SlotPolicy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.VersionID = id

	if err := s.admin.UpsertSlotPolicy(r.Context(), &p); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DELETE /api/versions/{id}/policy
func (s *HTTPServer) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	if err := s.admin.DeleteSlotPolicy(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/versions/{id}/exceptions?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	req := RangeRequest{StartDate: r.URL.Query().Get("from"), EndDate: r.URL.Query().Get("to")}
	from, to, err := validateRange(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exs, err := s.admin.ListExceptions(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if exs == nil {
		exs = []models.Exception{}
	}
	writeJSON(w, http.StatusOK, exs)
}

// POST /api/versions/{id}/exceptions
func (s *HTTPServer) handleCreateException(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	var req ExceptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	e, err := req.exception(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.admin.CreateException(r.Context(), e); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// DELETE /api/exceptions/{id}
func (s *HTTPServer) handleDeleteException(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid exception id")
		return
	}
	if err := s.admin.DeleteException(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/services/{id}/audit[?limit=N]
func (s *HTTPServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	entries, err := s.admin.AuditLog(r.Context(), serviceID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
