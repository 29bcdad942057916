package cohort

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/shared/types"
	"github.com/datanex/staycohort/internal/stay"
)

// RunReader is the read side of the run store.
type RunReader interface {
	GetRun(ctx context.Context, id types.ID) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
	ListRecords(ctx context.Context, runID types.ID, filter RecordFilter) ([]Record, error)
}

// Handler provides HTTP handlers for stored cohort runs
type Handler struct {
	repo         RunReader
	nationalCode string
}

// NewHandler creates a new cohort handler
func NewHandler(repo RunReader, nationalCode string) *Handler {
	return &Handler{repo: repo, nationalCode: nationalCode}
}

// Routes registers the cohort routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.ListRuns)

		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Get("/records", h.ListRecords)
			r.Get("/summary", h.GetSummary)
			r.Get("/sensitivity", h.GetSensitivity)
		})
	})

	return r
}

// ListRuns lists stored runs, newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}

	runs, err := h.repo.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

// GetRun gets a run by ID
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRecords lists a run's cohort records, optionally by unit and year
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := recordFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter.Limit, filter.Offset, err = paging(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.loadRecords(r, id, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"count": len(records),
	})
}

// GetSummary describes a run's cohort per year, per unit and per month
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := recordFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.loadRecords(r, id, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"yearly": Summarize(records, h.nationalCode),
		"units":  UnitSummary(records),
		"months": StaysByMonth(records),
	})
}

// GetSensitivity sweeps minimum-hours thresholds over a run's cohort
func (h *Handler) GetSensitivity(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := recordFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	thresholds := DefaultThresholdsHours
	if raw := r.URL.Query().Get("thresholds"); raw != "" {
		thresholds = nil
		for _, part := range strings.Split(raw, ",") {
			th, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || th < 0 {
				writeError(w, errors.BadRequest("invalid thresholds"))
				return
			}
			thresholds = append(thresholds, th)
		}
	}
	var maxDays float64
	if raw := r.URL.Query().Get("max_days"); raw != "" {
		maxDays, err = strconv.ParseFloat(raw, 64)
		if err != nil || maxDays < 0 {
			writeError(w, errors.BadRequest("invalid max_days"))
			return
		}
	}

	records, err := h.loadRecords(r, id, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	stays := make([]stay.AssignedStay, len(records))
	for i := range records {
		stays[i] = records[i].AssignedStay
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": ThresholdSensitivity(stays, thresholds, maxDays),
	})
}

// loadRecords checks the run exists so an unknown id is a 404, not an empty list.
func (h *Handler) loadRecords(r *http.Request, id types.ID, filter RecordFilter) ([]Record, error) {
	if _, err := h.repo.GetRun(r.Context(), id); err != nil {
		return nil, err
	}
	records, err := h.repo.ListRecords(r.Context(), id, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func runID(r *http.Request) (types.ID, error) {
	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		return "", errors.BadRequest("invalid run ID")
	}
	return id, nil
}

func recordFilter(r *http.Request) (RecordFilter, error) {
	filter := RecordFilter{Unit: r.URL.Query().Get("unit")}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return filter, errors.BadRequest("invalid year")
		}
		filter.Year = year
	}
	return filter, nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 || limit > 10000 {
			return 0, 0, errors.BadRequest("invalid limit")
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		offset, err = strconv.Atoi(o)
		if err != nil || offset < 0 {
			return 0, 0, errors.BadRequest("invalid offset")
		}
	}
	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
