package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"prenota/internal/config"
	"prenota/internal/metrics"
	"prenota/internal/models"
	"prenota/internal/schedule"
	"prenota/internal/service"
)

const requestIDHeader = "X-Request-ID"

// HTTPServer exposes availability queries and schedule administration as JSON over HTTP.
type HTTPServer struct {
	server  *http.Server
	avail   *service.AvailabilityService
	admin   *service.ScheduleService
	logger  *zerolog.Logger
	apiKeys map[string]struct{}
	limits  *limiterStore

	// now is the default evaluation instant when a request carries no now parameter.
	now func() time.Time
}

func NewHTTPServer(cfg *config.Config, avail *service.AvailabilityService, admin *service.ScheduleService, logger *zerolog.Logger) *HTTPServer {
	perSecond, burst := cfg.RateLimit()
	s := &HTTPServer{
		avail:   avail,
		admin:   admin,
		logger:  logger,
		apiKeys: make(map[string]struct{}, len(cfg.API.APIKeys)),
		limits:  newLimiterStore(rate.Limit(perSecond), burst),
		now:     time.Now,
	}
	for _, k := range cfg.API.APIKeys {
		if k != "" {
			s.apiKeys[k] = struct{}{}
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.withRequestID(s.withRateLimit(mux)),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	s.handle(mux, "GET /api/services/{id}/availability", "availability", s.handleAvailability, false)
	s.handle(mux, "POST /api/services/{id}/availability/range", "availability_range", s.handleAvailabilityRange, false)
	s.handle(mux, "GET /api/restaurants/{id}/availability", "restaurant_availability", s.handleRestaurantAvailability, false)
	s.handle(mux, "GET /api/services/{id}/slots/{start}", "slot_details", s.handleSlotDetails, false)

	s.handle(mux, "GET /api/services/{id}/versions", "list_versions", s.handleListVersions, false)
	s.handle(mux, "POST /api/services/{id}/versions", "create_version", s.handleCreateVersion, true)
	s.handle(mux, "GET /api/services/{id}/audit", "audit_log", s.handleAuditLog, true)
	s.handle(mux, "GET /api/versions/{id}", "get_version", s.handleGetVersion, false)
	s.handle(mux, "PUT /api/versions/{id}", "update_version", s.handleUpdateVersion, true)
	s.handle(mux, "POST /api/versions/{id}/archive", "archive_version", s.handleArchiveVersion, true)
	s.handle(mux, "GET /api/versions/{id}/weekly", "weekly_schedule", s.handleWeeklySchedule, false)
	s.handle(mux, "PUT /api/versions/{id}/weekly/{day}", "update_weekly_day", s.handleUpdateWeeklyDay, true)
	s.handle(mux, "GET /api/versions/{id}/policy", "get_policy", s.handleGetPolicy, false)
	s.handle(mux, "PUT /api/versions/{id}/policy", "upsert_policy", s.handleUpsertPolicy, true)
	s.handle(mux, "DELETE /api/versions/{id}/policy", "delete_policy", s.handleDeletePolicy, true)
	s.handle(mux, "GET /api/versions/{id}/exceptions", "list_exceptions", s.handleListExceptions, false)
	s.handle(mux, "POST /api/versions/{id}/exceptions", "create_exception", s.handleCreateException, true)
	s.handle(mux, "DELETE /api/exceptions/{id}", "delete_exception", s.handleDeleteException, true)
}

// handle registers h under pattern, counting responses under route. Admin routes
// require an API key when keys are configured.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc, admin bool) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if admin && !s.authorized(r) {
			writeError(rec, http.StatusUnauthorized, "missing or invalid API key")
		} else {
			h(rec, r)
		}
		metrics.IncHTTP(route, rec.status)
	})
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	if len(s.apiKeys) == 0 {
		return true
	}
	_, ok := s.apiKeys[r.Header.Get("X-API-Key")]
	return ok
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(started)).
			Msg("HTTP request")
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := s.clientKey(r)
		if !s.limits.get(client).Allow() {
			metrics.IncRateLimited()
			s.logger.Warn().Str("client", client).Msg("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded; try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets requests by a configured API key, or by remote host when the
// request carries no key or an unknown one.
func (s *HTTPServer) clientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if _, ok := s.apiKeys[key]; ok {
			return "key:" + key
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client. Buckets idle for longer than idle
// are dropped by a sweep that runs at most once per idle period.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(limit rate.Limit, burst int) *limiterStore {
	return &limiterStore{
		limiters:  make(map[string]*clientLimiter),
		limit:     limit,
		burst:     burst,
		idle:      limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *limiterStore) get(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}

	l, ok := s.limiters[client]
	if !ok {
		l = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[client] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (s *limiterStore) sweep(now time.Time) {
	for client, l := range s.limiters {
		if now.Sub(l.lastSeen) >= s.idle {
			delete(s.limiters, client)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeServiceError maps service errors to status codes. Unexpected errors are logged
// and hidden from the client.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", w.Header().Get(requestIDHeader)).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case models.IsValidation(err), errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, service.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrVersionOverlap),
		errors.Is(err, schedule.ErrContradictoryExceptions),
		errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, service.ErrVersionArchived):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
