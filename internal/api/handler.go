package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitalguard/vitalguard/internal/auth"
	"github.com/vitalguard/vitalguard/internal/pipeline"
	"github.com/vitalguard/vitalguard/internal/scoring"
	"github.com/vitalguard/vitalguard/internal/store"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

const (
	defaultMetricsWindowHours = 24
	trendDays                 = 7
)

// Handler is the HTTP handler for all /api/v1/* endpoints. Write paths go
// through the ingest pipeline; read paths query the record store directly.
type Handler struct {
	pipe   *pipeline.Pipeline
	scorer *scoring.Scorer
	store  *store.Store
	auth   *auth.Service
	mux    *http.ServeMux
	now    func() time.Time
}

// New creates a Handler and registers all routes. Every route except
// register, login and healthz sits behind the auth middleware.
func New(pipe *pipeline.Pipeline, scorer *scoring.Scorer, st *store.Store, authSvc *auth.Service) http.Handler {
	h := &Handler{
		pipe:   pipe,
		scorer: scorer,
		store:  st,
		auth:   authSvc,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}

	h.mux.HandleFunc("/api/v1/healthz", h.healthz)
	h.mux.HandleFunc("/api/v1/auth/register", h.register)
	h.mux.HandleFunc("/api/v1/auth/login", h.login)

	h.mux.Handle("/api/v1/health/readings", h.protected(h.readings))
	h.mux.Handle("/api/v1/health/readings/", h.protected(h.readingByID)) // subtree — extracts {id}
	h.mux.Handle("/api/v1/health/predict", h.protected(h.predict))
	h.mux.Handle("/api/v1/health/metrics/", h.protected(h.metrics))     // subtree — extracts {subject}
	h.mux.Handle("/api/v1/health/dashboard/", h.protected(h.dashboard)) // subtree — extracts {subject}
	h.mux.Handle("/api/v1/alerts", h.protected(h.alerts))
	h.mux.Handle("/api/v1/alerts/", h.protected(h.alertByID)) // subtree — {id}/read and {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) protected(fn http.HandlerFunc) http.Handler {
	return h.auth.Middleware(fn)
}

// --- route handlers ---------------------------------------------------------

// healthz returns GET /api/v1/healthz — liveness only, no dependencies touched.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readings handles POST (ingest one reading) and GET (list history) on
// /api/v1/health/readings.
func (h *Handler) readings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createReading(w, r)
	case http.MethodGet:
		h.listReadings(w, r)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) createReading(w http.ResponseWriter, r *http.Request) {
	var sub vitals.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if sub.Subject == "" {
		jsonErr(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reading, err := h.pipe.Ingest(r.Context(), &sub)
	if err != nil {
		var ve *vitals.ValidationError
		if errors.As(err, &ve) {
			jsonErr(w, http.StatusBadRequest, ve.Error())
			return
		}
		jsonErr(w, http.StatusInternalServerError, "failed to record reading")
		return
	}
	jsonResp(w, http.StatusCreated, reading)
}

// listReadings returns history, newest first. user_id is optional; without
// it readings for every subject are listed.
func (h *Handler) listReadings(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("user_id")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	readings, err := h.store.Readings(r.Context(), subject, limit, offset)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to list readings")
		return
	}
	jsonResp(w, http.StatusOK, readings)
}

// readingByID returns GET /api/v1/health/readings/{id} — a single reading.
func (h *Handler) readingByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(w, r.URL.Path, "/api/v1/health/readings/")
	if !ok {
		return
	}
	reading, err := h.store.Reading(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonErr(w, http.StatusNotFound, "reading not found")
			return
		}
		jsonErr(w, http.StatusInternalServerError, "failed to load reading")
		return
	}
	jsonResp(w, http.StatusOK, reading)
}

// predict returns POST /api/v1/health/predict — a classification for the
// submitted vitals without persisting anything.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var sub vitals.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vec, err := sub.Normalize()
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.scorer.Score(vec)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "scoring failed")
		return
	}
	jsonResp(w, http.StatusOK, PredictionResponse{
		AnomalyScore: c.AnomalyScore,
		IsAnomaly:    c.Anomalous,
		Confidence:   c.Confidence,
	})
}

// metrics returns GET /api/v1/health/metrics/{subject} — aggregates over a
// window selected by the ?hours= query parameter (default 24).
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subject := strings.TrimPrefix(r.URL.Path, "/api/v1/health/metrics/")
	if subject == "" || strings.Contains(subject, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	hours := queryInt(r, "hours", defaultMetricsWindowHours)
	if hours <= 0 {
		jsonErr(w, http.StatusBadRequest, "hours must be positive")
		return
	}

	since := h.now().Add(-time.Duration(hours) * time.Hour)
	sum, err := h.store.MetricsSummary(r.Context(), subject, since)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	jsonResp(w, http.StatusOK, toMetricsResponse(subject, hours, sum))
}

// dashboard returns GET /api/v1/health/dashboard/{subject} — the latest
// reading, 24h aggregates, recent alerts and a 7-day anomaly trend.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subject := strings.TrimPrefix(r.URL.Path, "/api/v1/health/dashboard/")
	if subject == "" || strings.Contains(subject, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	now := h.now()
	ctx := r.Context()

	latest, err := h.store.Readings(ctx, subject, 1, 0)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	sum, err := h.store.MetricsSummary(ctx, subject, now.Add(-defaultMetricsWindowHours*time.Hour))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	alerts, err := h.store.RecentAlerts(ctx, subject, 0)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	week, err := h.store.ReadingsSince(ctx, subject, now.AddDate(0, 0, -trendDays))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	resp := DashboardResponse{
		Subject:      subject,
		Metrics:      toMetricsResponse(subject, defaultMetricsWindowHours, sum),
		RecentAlerts: alerts,
		AnomalyTrend: anomalyTrend(now, week),
	}
	if len(latest) > 0 {
		resp.Latest = &latest[0]
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts — alert history, filterable by user_id
// and ?unread_only=true.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subject := r.URL.Query().Get("user_id")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	var read *bool
	if r.URL.Query().Get("unread_only") == "true" {
		f := false
		read = &f
	}

	out, err := h.store.Alerts(r.Context(), subject, read, limit, offset)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// alertByID handles PUT /api/v1/alerts/{id}/read and DELETE /api/v1/alerts/{id}.
func (h *Handler) alertByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")

	switch {
	case r.Method == http.MethodPut && strings.HasSuffix(rest, "/read"):
		id, ok := parseID(w, strings.TrimSuffix(rest, "/read"))
		if !ok {
			return
		}
		if err := h.store.MarkAlertRead(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				jsonErr(w, http.StatusNotFound, "alert not found")
				return
			}
			jsonErr(w, http.StatusInternalServerError, "failed to update alert")
			return
		}
		jsonResp(w, http.StatusOK, map[string]string{"status": "marked as read"})

	case r.Method == http.MethodDelete:
		id, ok := parseID(w, rest)
		if !ok {
			return
		}
		if err := h.store.DeleteAlert(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				jsonErr(w, http.StatusNotFound, "alert not found")
				return
			}
			jsonErr(w, http.StatusInternalServerError, "failed to delete alert")
			return
		}
		jsonResp(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// register creates a user account via POST /api/v1/auth/register.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonErr(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	user := &auth.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		jsonErr(w, http.StatusConflict, "username or email already registered")
		return
	}
	jsonResp(w, http.StatusCreated, user)
}

// login verifies credentials and issues a token via POST /api/v1/auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.store.UserByUsername(r.Context(), req.Username)
	if err != nil || !user.Active || !h.auth.CheckPassword(user.PasswordHash, req.Password) {
		jsonErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.auth.IssueToken(user.Username)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	jsonResp(w, http.StatusOK, tokenResponse{
		Token:    token,
		Type:     "bearer",
		Username: user.Username,
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// pathID extracts the trailing numeric id from a subtree path.
func pathID(w http.ResponseWriter, path, prefix string) (uint, bool) {
	return parseID(w, strings.TrimPrefix(path, prefix))
}

func parseID(w http.ResponseWriter, raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// toMetricsResponse maps a store summary to its JSON representation. Average
// fields are null rather than zero when the window holds no readings.
func toMetricsResponse(subject string, hours int, sum store.Summary) MetricsResponse {
	resp := MetricsResponse{
		Subject:       subject,
		WindowHours:   hours,
		AnomalyCount:  sum.AnomalyCount,
		TotalReadings: sum.TotalReadings,
	}
	if sum.TotalReadings > 0 {
		hr, spo2 := sum.AvgHeartRate, sum.AvgBloodOxygen
		resp.AvgHeartRate = &hr
		resp.AvgBloodOxygen = &spo2
	}
	if sum.LastReadingAt != nil {
		s := sum.LastReadingAt.UTC().Format(time.RFC3339)
		resp.LastReadingAt = &s
	}
	return resp
}

// anomalyTrend buckets the past week's readings per calendar day (UTC),
// oldest day first. Days with no readings still appear with zero counts.
func anomalyTrend(now time.Time, readings []vitals.Reading) []TrendBucket {
	buckets := make([]TrendBucket, trendDays)
	index := make(map[string]int, trendDays)
	start := now.UTC().AddDate(0, 0, -(trendDays - 1))
	for i := 0; i < trendDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		buckets[i] = TrendBucket{Date: date}
		index[date] = i
	}

	for _, r := range readings {
		day := r.Timestamp.UTC().Format("2006-01-02")
		i, ok := index[day]
		if !ok {
			continue
		}
		buckets[i].Total++
		if r.Anomalous {
			buckets[i].Anomalies++
		}
	}
	return buckets
}
