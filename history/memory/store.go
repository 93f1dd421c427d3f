// Package memory provides an in-memory run history used by tests and
// single-process experiments.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/LCLUCam/VULCAN/domain"
	"github.com/LCLUCam/VULCAN/history"
)

// Store implements history.Store with maps under a single mutex. It
// enforces the same append-only and consume-once semantics as the
// durable store so tests exercise the real contract.
type Store struct {
	mu      sync.Mutex
	counter int64
	runs    map[int64]domain.RunRecord
	order   []int64
	columns map[int64]map[domain.ColumnID]domain.ColumnState
	mods    map[int64]map[domain.ColumnID]domain.ExternalModification
}

func NewStore() *Store {
	return &Store{
		runs:    make(map[int64]domain.RunRecord),
		columns: make(map[int64]map[domain.ColumnID]domain.ColumnState),
		mods:    make(map[int64]map[domain.ColumnID]domain.ExternalModification),
	}
}

func (s *Store) NextRunNumber(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter, nil
}

func (s *Store) CreateRun(ctx context.Context, rec domain.RunRecord) error {
	if s == nil {
		return errors.New("memory history store is not initialized")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[rec.RunNumber]; exists {
		return errors.New("run already recorded")
	}
	rec.Columns = nil
	s.runs[rec.RunNumber] = rec
	s.order = append(s.order, rec.RunNumber)
	return nil
}

func (s *Store) FinalizeRun(ctx context.Context, runNumber int64, status domain.RunStatus) error {
	if s == nil {
		return errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runNumber]
	if !ok {
		return history.ErrNotFound
	}
	if rec.Status != domain.RunRunning {
		return errors.New("run is already finalized")
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.EndedAt = &now
	s.runs[runNumber] = rec
	return nil
}

func (s *Store) GetRun(ctx context.Context, runNumber int64) (domain.RunRecord, error) {
	if s == nil {
		return domain.RunRecord{}, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runNumber]
	if !ok {
		return domain.RunRecord{}, history.ErrNotFound
	}
	rec.Columns = s.columnsOfLocked(runNumber)
	return rec, nil
}

func (s *Store) LatestRun(ctx context.Context) (domain.RunRecord, error) {
	if s == nil {
		return domain.RunRecord{}, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return domain.RunRecord{}, history.ErrNotFound
	}
	last := s.order[len(s.order)-1]
	rec := s.runs[last]
	rec.Columns = s.columnsOfLocked(last)
	return rec, nil
}

func (s *Store) CreateColumnState(ctx context.Context, st domain.ColumnState) error {
	if s == nil {
		return errors.New("memory history store is not initialized")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCol, ok := s.columns[st.RunNumber]
	if !ok {
		byCol = make(map[domain.ColumnID]domain.ColumnState)
		s.columns[st.RunNumber] = byCol
	}
	if _, exists := byCol[st.Column]; exists {
		return errors.New("column state already recorded for this run")
	}
	byCol[st.Column] = st
	return nil
}

func (s *Store) FinalizeColumnState(ctx context.Context, st domain.ColumnState) error {
	if s == nil {
		return errors.New("memory history store is not initialized")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCol, ok := s.columns[st.RunNumber]
	if !ok {
		return history.ErrNotFound
	}
	before, ok := byCol[st.Column]
	if !ok {
		return history.ErrNotFound
	}
	if !domain.CanTransitionColumnStatus(before.Status, st.Status) {
		return errors.New("column state is terminal")
	}
	if err := domain.EnsureColumnStateImmutable(before, st); err != nil {
		return err
	}
	byCol[st.Column] = st
	return nil
}

func (s *Store) ListColumnStates(ctx context.Context, runNumber int64) ([]domain.ColumnState, error) {
	if s == nil {
		return nil, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columnsOfLocked(runNumber), nil
}

func (s *Store) LatestSuccessfulColumn(ctx context.Context, col domain.ColumnID) (domain.ColumnState, error) {
	if s == nil {
		return domain.ColumnState{}, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		byCol, ok := s.columns[s.order[i]]
		if !ok {
			continue
		}
		st, ok := byCol[col]
		if ok && st.Status.Successful() {
			return st, nil
		}
	}
	return domain.ColumnState{}, history.ErrNotFound
}

func (s *Store) PutModification(ctx context.Context, mod domain.ExternalModification) error {
	if s == nil {
		return errors.New("memory history store is not initialized")
	}
	if err := mod.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCol, ok := s.mods[mod.RunNumber]
	if !ok {
		byCol = make(map[domain.ColumnID]domain.ExternalModification)
		s.mods[mod.RunNumber] = byCol
	}
	if existing, exists := byCol[mod.Column]; exists && existing.ConsumedAt == nil {
		return errors.New("modification already pending for this run and column")
	}
	mod.ConsumedAt = nil
	byCol[mod.Column] = mod
	return nil
}

func (s *Store) TakeModification(ctx context.Context, runNumber int64, col domain.ColumnID) (domain.ExternalModification, error) {
	if s == nil {
		return domain.ExternalModification{}, errors.New("memory history store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCol, ok := s.mods[runNumber]
	if !ok {
		return domain.ExternalModification{}, history.ErrNotFound
	}
	mod, ok := byCol[col]
	if !ok || mod.ConsumedAt != nil {
		return domain.ExternalModification{}, history.ErrNotFound
	}
	now := time.Now().UTC()
	mod.ConsumedAt = &now
	byCol[col] = mod
	return mod, nil
}

// columnsOfLocked snapshots the column states of a run in scheduling
// order. Callers hold the mutex.
func (s *Store) columnsOfLocked(runNumber int64) []domain.ColumnState {
	byCol, ok := s.columns[runNumber]
	if !ok {
		return nil
	}
	out := make([]domain.ColumnState, 0, len(byCol))
	for _, st := range byCol {
		out = append(out, st)
	}
	// Map order is random; keep listings deterministic.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Column, out[j].Column
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

var _ history.Store = (*Store)(nil)
