package cohort

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanex/staycohort/internal/shared/errors"
	"github.com/datanex/staycohort/internal/shared/types"
)

func (m *memoryStore) GetRun(_ context.Context, id types.ID) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id.String())
	}
	return run, nil
}

func (m *memoryStore) ListRuns(_ context.Context, limit, offset int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []Run
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	return runs, nil
}

func (m *memoryStore) ListRecords(_ context.Context, runID types.ID, filter RecordFilter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records[runID] {
		if filter.Unit != "" && r.AssignedUnit != filter.Unit {
			continue
		}
		if filter.Year != 0 && r.YearAdmission != filter.Year {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func seededStore(t *testing.T) (*memoryStore, types.ID) {
	t.Helper()
	store := newMemoryStore()
	run := &Run{ID: types.NewID(), Status: RunCompleted, StartedAt: time.Now()}
	require.NoError(t, store.CreateRun(context.Background(), run))

	a := record("P1", "EP1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 3)
	a.Sex = SexMale
	b := record("P2", "EP2", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 1)
	b.AssignedUnit = "I073"
	_, err := store.SaveRecords(context.Background(), run.ID, []Record{a, b})
	require.NoError(t, err)
	return store, run.ID
}

func serve(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandlerGetRun(t *testing.T) {
	store, id := seededStore(t)
	h := NewHandler(store, DefaultNationalCode)

	rec := serve(t, h, "/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var run Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, id, run.ID)

	rec = serve(t, h, "/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, "/runs/"+types.NewID().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListRecordsFilters(t *testing.T) {
	store, id := seededStore(t)
	h := NewHandler(store, DefaultNationalCode)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "", http.StatusOK, 2},
		{"by unit", "?unit=I073", http.StatusOK, 1},
		{"by year", "?year=2023", http.StatusOK, 0},
		{"bad year", "?year=abc", http.StatusBadRequest, 0},
		{"bad limit", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, "/runs/"+id.String()+"/records"+tt.query)
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var body struct {
				Data  []Record `json:"data"`
				Count int      `json:"count"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.count, body.Count)
			assert.Len(t, body.Data, tt.count)
		})
	}
}

func TestHandlerSummary(t *testing.T) {
	store, id := seededStore(t)
	h := NewHandler(store, DefaultNationalCode)

	rec := serve(t, h, "/runs/"+id.String()+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Yearly Summary           `json:"yearly"`
		Units  []UnitYearSummary `json:"units"`
		Months []MonthCount      `json:"months"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []int{2024}, body.Yearly.Years)
	assert.Len(t, body.Units, 2)
	assert.Len(t, body.Months, 2)
}

func TestHandlerSensitivity(t *testing.T) {
	store, id := seededStore(t)
	h := NewHandler(store, DefaultNationalCode)

	rec := serve(t, h, "/runs/"+id.String()+"/sensitivity?thresholds=0,48")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []ThresholdRow `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, 2, body.Data[0].Admissions)
	assert.Equal(t, 1, body.Data[1].Admissions)

	rec = serve(t, h, "/runs/"+id.String()+"/sensitivity?thresholds=a")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
