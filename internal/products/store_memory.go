package products

import (
	"context"
	"sync"
)

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]Product
	byName map[string]int64
	order  []int64
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		m:      map[int64]Product{},
		byName: map[string]int64{},
		nextID: 1,
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Insert(ctx context.Context, f Fields) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[f.Name]; taken {
		return Product{}, ErrNameTaken
	}

	p := f.withID(s.nextID)
	s.nextID++

	s.m[p.ID] = p
	s.byName[p.Name] = p.ID
	s.order = append(s.order, p.ID)
	return p, nil
}

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.m[id])
	}
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return p, ok, nil
}

func (s *MemStore) Update(ctx context.Context, p Product) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.m[p.ID]
	if !ok {
		return Product{}, ErrNotFound
	}
	if owner, taken := s.byName[p.Name]; taken && owner != p.ID {
		return Product{}, ErrNameTaken
	}

	delete(s.byName, old.Name)
	s.byName[p.Name] = p.ID
	s.m[p.ID] = p
	return p, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.m, id)
	delete(s.byName, p.Name)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
