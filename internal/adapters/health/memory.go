package health

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/datanex/staycohort/internal/stay"
)

// MemorySource serves feeds from an in-memory snapshot. It applies the same
// window predicate as the warehouse adapter.
type MemorySource struct {
	data *Snapshot
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource wraps a snapshot.
func NewMemorySource(data *Snapshot) *MemorySource {
	return &MemorySource{data: data}
}

// ReadSnapshotFile loads a snapshot previously written with WriteSnapshotFile.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// WriteSnapshotFile stores a snapshot as JSON so a run can be replayed.
func WriteSnapshotFile(path string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

func (s *MemorySource) inWindow(m stay.MovementEvent, w Window) bool {
	end := w.ReferenceTime
	if m.End != nil {
		end = *m.End
	}
	if m.Start.After(w.To) || end.Before(w.From) {
		return false
	}
	if len(w.Units) == 0 {
		return true
	}
	for _, u := range w.Units {
		if u == m.UnitID {
			return true
		}
	}
	return false
}

func (s *MemorySource) scope(w Window) (episodes, patients map[string]bool) {
	episodes, patients = map[string]bool{}, map[string]bool{}
	for _, m := range s.data.Movements {
		if s.inWindow(m, w) {
			episodes[m.EpisodeID] = true
			patients[m.PatientID] = true
		}
	}
	return episodes, patients
}

// FetchMovements returns the movements overlapping the window.
func (s *MemorySource) FetchMovements(_ context.Context, w Window) ([]stay.MovementEvent, error) {
	var out []stay.MovementEvent
	for _, m := range s.data.Movements {
		if s.inWindow(m, w) {
			out = append(out, m)
		}
	}
	return out, nil
}

// FetchPrescriptions returns prescriptions of episodes in the window.
func (s *MemorySource) FetchPrescriptions(_ context.Context, w Window) ([]stay.PrescriptionEvent, error) {
	episodes, _ := s.scope(w)
	var out []stay.PrescriptionEvent
	for _, p := range s.data.Prescriptions {
		if episodes[p.EpisodeID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// FetchDemographics returns demographics of patients in the window.
func (s *MemorySource) FetchDemographics(_ context.Context, w Window) (map[string]Demographics, error) {
	_, patients := s.scope(w)
	out := make(map[string]Demographics)
	for id, d := range s.data.Demographics {
		if patients[id] {
			out[id] = d
		}
	}
	return out, nil
}

// FetchDeaths returns death dates of patients in the window.
func (s *MemorySource) FetchDeaths(_ context.Context, w Window) (map[string]time.Time, error) {
	_, patients := s.scope(w)
	out := make(map[string]time.Time)
	for id, d := range s.data.Deaths {
		if patients[id] {
			out[id] = d
		}
	}
	return out, nil
}

// FetchChronicPatients returns the snapshot's chronic flags for patients in
// the window. Code prefixes were already applied when the snapshot was taken.
func (s *MemorySource) FetchChronicPatients(_ context.Context, w Window, _ []string) (map[string]bool, error) {
	_, patients := s.scope(w)
	out := make(map[string]bool)
	for id, flag := range s.data.Chronic {
		if flag && patients[id] {
			out[id] = true
		}
	}
	return out, nil
}

// SourceSystem returns the source system name
func (s *MemorySource) SourceSystem() string {
	if s.data.SourceSystem != "" {
		return "snapshot:" + s.data.SourceSystem
	}
	return "memory"
}

// Health always succeeds.
func (s *MemorySource) Health(context.Context) error { return nil }

// Close is a no-op.
func (s *MemorySource) Close() error { return nil }
