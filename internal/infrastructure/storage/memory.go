package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/events"
)

// MemoryStore is the in-process Store used in tests and for a process that
// doesn't need its recovery state to survive a restart. Grounded on the
// teacher's MemoryStore (plain mutex-guarded maps, one per table).
type MemoryStore struct {
	mu       sync.RWMutex
	locks    map[string]domain.LockRecord
	pending  map[string]domain.PendingCheck
	spotted  map[string]map[string]bool
	events   []events.Event
	eventSeq map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    make(map[string]domain.LockRecord),
		pending:  make(map[string]domain.PendingCheck),
		spotted:  make(map[string]map[string]bool),
		eventSeq: make(map[string]int64),
	}
}

func (s *MemoryStore) SaveLock(ctx context.Context, rec domain.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[rec.TokenID] = rec
	return nil
}

func (s *MemoryStore) GetLock(ctx context.Context, tokenID string) (domain.LockRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.locks[tokenID]
	return rec, ok, nil
}

func (s *MemoryStore) DeleteLock(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, tokenID)
	return nil
}

func (s *MemoryStore) ListLocks(ctx context.Context) ([]domain.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LockRecord, 0, len(s.locks))
	for _, rec := range s.locks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (s *MemoryStore) SavePendingCheck(ctx context.Context, pc domain.PendingCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pc.InitiatorID] = pc
	return nil
}

func (s *MemoryStore) GetPendingCheck(ctx context.Context, initiatorID string) (domain.PendingCheck, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.pending[initiatorID]
	return pc, ok, nil
}

func (s *MemoryStore) DeletePendingCheck(ctx context.Context, initiatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, initiatorID)
	return nil
}

func (s *MemoryStore) ListPendingChecks(ctx context.Context) ([]domain.PendingCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PendingCheck, 0, len(s.pending))
	for _, pc := range s.pending {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatorID < out[j].InitiatorID })
	return out, nil
}

func (s *MemoryStore) MarkSpotted(ctx context.Context, trapID, observerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.spotted[trapID]
	if !ok {
		bucket = make(map[string]bool)
		s.spotted[trapID] = bucket
	}
	bucket[observerID] = true
	return nil
}

func (s *MemoryStore) IsSpotted(ctx context.Context, trapID, observerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spotted[trapID][observerID], nil
}

func (s *MemoryStore) ClearSpotted(ctx context.Context, trapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spotted, trapID)
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSeq[ev.TrapID]++
	ev.Sequence = s.eventSeq[ev.TrapID]
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) ListEventsByTrap(ctx context.Context, trapID string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, ev := range s.events {
		if ev.TrapID == trapID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }
