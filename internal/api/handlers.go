package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/relvacode/iso8601"

	"sensorpipe/internal/auth"
	"sensorpipe/internal/chart"
	"sensorpipe/internal/db"
	"sensorpipe/internal/model"
	"sensorpipe/internal/service"
)

const (
	headerAPIKey     = "x-api-key"
	queryStart       = "start"
	queryEnd         = "end"
	querySensors     = "sensors"
	querySensor      = "sensor"
	queryLimit       = "limit"
	defaultChartSpan = 24 * time.Hour
	maxErrorLimit    = 500
	maxChartTicks    = 50
)

type webhookResponse struct {
	Message        string   `json:"message"`
	CycleID        string   `json:"cycle_id"`
	PersistedCount int      `json:"persisted_count"`
	FailedSources  []string `json:"failed_sources,omitempty"`
	OfflineSources []string `json:"offline_sources,omitempty"`
}

func (h *handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(headerAPIKey)
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.WebhookKey)) != 1 {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	res, err := h.Ingest.RunCycle(r.Context())
	switch {
	case errors.Is(err, service.ErrBusy):
		h.writeError(w, http.StatusConflict, "ingestion already in progress")
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{
		Message:        "Data processed successfully",
		CycleID:        res.CycleID,
		PersistedCount: res.PersistedCount,
		FailedSources:  res.Failed,
		OfflineSources: res.Offline,
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	token, err := h.Sessions.Login(req.Password)
	if errors.Is(err, auth.ErrInvalidPassword) {
		h.writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		h.Logger.Errorw("failed to issue session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.Sessions.SetCookie(w, token)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Authentication successful"})
}

func (h *handler) handleVerifyAuth(w http.ResponseWriter, r *http.Request) {
	if h.Sessions.FromRequest(r) {
		h.writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
		return
	}
	h.writeJSON(w, http.StatusUnauthorized, map[string]bool{"authenticated": false})
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.ClearCookie(w)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type dataResponse struct {
	Data       []model.Reading `json:"data"`
	LastValues []model.Reading `json:"lastValues,omitempty"`
}

// handleData returns the readings in the requested range. Retention is
// unbounded, so a request without start and end returns the whole table
// unless limit asks for only the newest rows. That unbounded form also
// carries the last value of every sensor.
func (h *handler) handleData(w http.ResponseWriter, r *http.Request) {
	q, err := parseRangeQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit, err = intParam(r.URL.Query().Get(queryLimit), 0); err != nil || q.Limit < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	data, err := h.Readings.Range(r.Context(), q)
	if err != nil {
		h.Logger.Errorw("range query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := dataResponse{Data: data}
	if q.Start == nil && q.End == nil {
		latest, err := h.Readings.LatestPerSensor(r.Context())
		if err != nil {
			h.Logger.Errorw("latest query failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.LastValues = latest
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type chartResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	chart.Chart
}

func (h *handler) handleChart(w http.ResponseWriter, r *http.Request) {
	q, err := parseRangeQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.End == nil {
		end := h.Now()
		q.End = &end
	}
	if q.Start == nil {
		start := q.End.Add(-defaultChartSpan)
		q.Start = &start
	}

	params := r.URL.Query()
	window, err := intParam(params.Get("smooth"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid smooth window")
		return
	}
	maxTicks, err := intParam(params.Get("max_ticks"), chart.DefaultMaxTicks)
	if err != nil || maxTicks < 2 || maxTicks > maxChartTicks {
		h.writeError(w, http.StatusBadRequest, "invalid max_ticks")
		return
	}
	loc := h.Location
	if tz := params.Get("tz"); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid tz")
			return
		}
	}

	readings, err := h.Readings.Range(r.Context(), q)
	if err != nil {
		h.Logger.Errorw("range query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sensors := q.Sensors
	if len(sensors) == 0 {
		sensors = displayOrder(h.SensorOrder, readings)
	}

	h.writeJSON(w, http.StatusOK, chartResponse{
		Start: *q.Start,
		End:   *q.End,
		Chart: chart.Build(readings, chart.Options{
			Sensors:  sensors,
			Window:   window,
			MaxTicks: maxTicks,
			Location: loc,
		}),
	})
}

func (h *handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get(queryLimit), 50)
	if err != nil || limit <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxErrorLimit {
		limit = maxErrorLimit
	}

	entries, err := h.Errors.Recent(r.Context(), limit)
	if err != nil {
		h.Logger.Errorw("error log query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"errors": entries})
}

type badParamError struct{ param string }

func (e badParamError) Error() string { return "invalid " + e.param + " timestamp" }

func parseRangeQuery(r *http.Request) (db.RangeQuery, error) {
	params := r.URL.Query()
	var q db.RangeQuery

	if raw := params.Get(queryStart); raw != "" {
		t, err := iso8601.ParseString(raw)
		if err != nil {
			return q, badParamError{queryStart}
		}
		q.Start = &t
	}
	if raw := params.Get(queryEnd); raw != "" {
		t, err := iso8601.ParseString(raw)
		if err != nil {
			return q, badParamError{queryEnd}
		}
		q.End = &t
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return q, errors.New("start must not be after end")
	}

	seen := map[string]bool{}
	for _, key := range []string{querySensors, querySensor} {
		for _, s := range params[key] {
			if s != "" && !seen[s] {
				seen[s] = true
				q.Sensors = append(q.Sensors, s)
			}
		}
	}
	return q, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// displayOrder lists configured sensors first, then any others found in readings, sorted.
func displayOrder(configured []string, readings []model.Reading) []string {
	order := append([]string(nil), configured...)
	known := make(map[string]bool, len(order))
	for _, s := range order {
		known[s] = true
	}
	var extra []string
	for _, r := range readings {
		if !known[r.SensorID] {
			known[r.SensorID] = true
			extra = append(extra, r.SensorID)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
