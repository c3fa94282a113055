package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"feedwatch/internal/calendar"
	"feedwatch/internal/registry"
	"feedwatch/internal/scheduler"
	"feedwatch/internal/service"
	"feedwatch/internal/storage"
)

const summaryDays = 90

// Monitor is the slice of the sweep service the API consumes.
type Monitor interface {
	Summary(ctx context.Context, days int) ([]service.FeedSummary, error)
	CheckFeedByName(ctx context.Context, name string, cobDate time.Time) (storage.StatusRecord, error)
}

// Trigger requests sweeps and reports scheduler state.
type Trigger interface {
	TriggerNow() bool
	State() scheduler.State
}

// Handlers bundle the API endpoint implementations.
type Handlers struct {
	monitor  Monitor
	trigger  Trigger
	registry *registry.Registry
	cal      *calendar.Calendar
	logger   zerolog.Logger
}

// NewHandlers constructs the endpoint set.
func NewHandlers(monitor Monitor, trigger Trigger, reg *registry.Registry, cal *calendar.Calendar, logger zerolog.Logger) *Handlers {
	return &Handlers{
		monitor:  monitor,
		trigger:  trigger,
		registry: reg,
		cal:      cal,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Health reports liveness and the scheduler state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	state := "disabled"
	if h.trigger != nil {
		state = h.trigger.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "feedwatch",
		"scheduler": state,
	})
}

// FeedsStatus returns the trailing 90-day summary for every feed.
func (h *Handlers) FeedsStatus(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.monitor.Summary(r.Context(), summaryDays)
	if err != nil {
		h.logger.Error().Err(err).Msg("summary failed")
		writeError(w, http.StatusInternalServerError, "failed to build feed summary")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

type statusResponse struct {
	FeedName        string `json:"feed_name"`
	COBDate         string `json:"cob_date"`
	Status          string `json:"status"`
	RecordCount     int64  `json:"record_count"`
	CompletenessPct string `json:"completeness_pct"`
	ExpectedTime    string `json:"expected_time,omitempty"`
	DayOfWeek       string `json:"day_of_week"`
	IsWeekend       bool   `json:"is_weekend"`
	LastChecked     string `json:"last_checked"`
	Error           string `json:"error,omitempty"`
}

// FeedStatus evaluates one feed on demand, defaulting the COB date to
// the one a sweep would target right now.
func (h *Handlers) FeedStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := h.registry.Get(name); !ok {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}

	cobDate := h.cal.ResolveCOB(time.Now())
	if raw := r.URL.Query().Get("cob_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cob_date, expected YYYY-MM-DD")
			return
		}
		cobDate = parsed
	}

	record, err := h.monitor.CheckFeedByName(r.Context(), name, cobDate)
	if err != nil {
		h.logger.Error().Err(err).Str("feed", name).Msg("feed check failed")
		writeError(w, http.StatusInternalServerError, "feed check failed")
		return
	}

	resp := statusResponse{
		FeedName:        record.FeedName,
		COBDate:         record.COBDate.Format("2006-01-02"),
		Status:          record.Verdict.String(),
		RecordCount:     record.RecordCount,
		CompletenessPct: record.CompletenessPct.StringFixed(2),
		ExpectedTime:    record.ExpectedTime,
		DayOfWeek:       record.COBDate.Format("Mon"),
		IsWeekend:       h.cal.IsWeekend(record.COBDate),
		LastChecked:     record.LastChecked.UTC().Format(time.RFC3339),
	}
	if record.Error != nil {
		resp.Error = *record.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerCheck queues a manual sweep.
func (h *Handlers) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	queued := h.trigger.TriggerNow()
	message := "feed check queued"
	if !queued {
		message = "feed check already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": message,
		"queued":  queued,
	})
}

type feedConfigResponse struct {
	Name             string `json:"name"`
	SourceTable      string `json:"source_table"`
	DateColumn       string `json:"date_column"`
	ExpectedTime     string `json:"expected_time"`
	ToleranceMinutes int    `json:"tolerance_minutes"`
	WeekendExpected  bool   `json:"weekend_expected"`
	MinRecords       int64  `json:"min_records"`
}

// FeedConfigs lists the registry without connection descriptors.
func (h *Handlers) FeedConfigs(w http.ResponseWriter, r *http.Request) {
	feeds := h.registry.List()
	out := make([]feedConfigResponse, 0, len(feeds))
	for _, feed := range feeds {
		out = append(out, feedConfigResponse{
			Name:             feed.Name,
			SourceTable:      feed.SourceTable,
			DateColumn:       feed.DateColumn,
			ExpectedTime:     feed.ExpectedTime.String(),
			ToleranceMinutes: int(feed.Tolerance / time.Minute),
			WeekendExpected:  feed.WeekendExpected,
			MinRecords:       feed.MinRecords,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
