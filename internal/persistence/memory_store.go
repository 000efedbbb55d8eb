package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/retrofit/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// ProgramStore and ParticipantStore backed by maps.
//
// Values are copied on the way in and on the way out, so callers never
// share memory with the store.
type InMemoryStore struct {
	mu           sync.RWMutex
	programs     map[string]api.Program
	participants map[string]*api.Participant
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		programs:     make(map[string]api.Program),
		participants: make(map[string]*api.Participant),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ ProgramStore = (*InMemoryStore)(nil)

var _ ParticipantStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveProgram(ctx context.Context, prog api.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[prog.ID]; ok {
		return ErrProgramExists
	}
	s.programs[prog.ID] = prog
	return nil
}

func (s *InMemoryStore) UpdateProgram(ctx context.Context, prog api.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[prog.ID]; !ok {
		return ErrProgramNotFound
	}
	s.programs[prog.ID] = prog
	return nil
}

func (s *InMemoryStore) GetProgram(ctx context.Context, id string) (api.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prog, ok := s.programs[id]
	if !ok {
		return api.Program{}, ErrProgramNotFound
	}
	return prog, nil
}

func (s *InMemoryStore) ListPrograms(ctx context.Context) ([]api.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Program, 0, len(s.programs))
	for _, prog := range s.programs {
		out = append(out, prog)
	}
	sortPrograms(out)
	return out, nil
}

func (s *InMemoryStore) SaveParticipant(ctx context.Context, p *api.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[p.ID]; ok {
		return ErrParticipantExists
	}
	s.participants[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryStore) UpdateParticipant(ctx context.Context, p *api.Participant, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.participants[p.ID]
	if !ok {
		return ErrParticipantNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	if len(p.StatusHistory) < len(cur.StatusHistory) {
		return ErrHistoryRewrite
	}

	s.participants[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryStore) GetParticipant(ctx context.Context, id string) (*api.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) ListParticipants(ctx context.Context, filter ParticipantFilter) ([]*api.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Participant
	for _, p := range s.participants {
		if !filter.Matches(p) {
			continue
		}
		result = append(result, p.Clone())
	}
	sortParticipants(result)

	return result, nil
}

func sortPrograms(ps []api.Program) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

func sortParticipants(ps []*api.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
