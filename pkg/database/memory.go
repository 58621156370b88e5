package database

import (
	"context"
	"sort"
	"sync"

	"storefront-checkout/pkg/models"
)

// MemoryStore keeps state in process memory. Records are copied on the way
// in and out so callers never share a map with the store.
type MemoryStore struct {
	mu      sync.Mutex
	state   map[string]string
	offline map[string]models.OfflineOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:   map[string]string{},
		offline: map[string]models.OfflineOrder{},
	}
}

func (m *MemoryStore) GetState(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state[key]
	return v, ok, nil
}

func (m *MemoryStore) SetState(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = value
	return nil
}

func (m *MemoryStore) DeleteState(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.state, k)
	}
	return nil
}

func (m *MemoryStore) SaveOfflineOrder(_ context.Context, rec models.OfflineOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline[rec.ID] = copyOffline(rec)
	return nil
}

func (m *MemoryStore) GetOfflineOrder(_ context.Context, id string) (models.OfflineOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.offline[id]
	if !ok {
		return models.OfflineOrder{}, false, nil
	}
	return copyOffline(rec), true, nil
}

func (m *MemoryStore) ListOfflineOrders(_ context.Context) ([]models.OfflineOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OfflineOrder, 0, len(m.offline))
	for _, rec := range m.offline {
		out = append(out, copyOffline(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteOfflineOrders(_ context.Context, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.offline[id]; ok {
			delete(m.offline, id)
			n++
		}
	}
	return n, nil
}

func copyOffline(rec models.OfflineOrder) models.OfflineOrder {
	if rec.CallbackParameters != nil {
		params := make(map[string]string, len(rec.CallbackParameters))
		for k, v := range rec.CallbackParameters {
			params[k] = v
		}
		rec.CallbackParameters = params
	}
	if rec.LastAttempt != nil {
		t := *rec.LastAttempt
		rec.LastAttempt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		rec.CompletedAt = &t
	}
	if rec.OrderDetails != nil {
		d := *rec.OrderDetails
		d.Items = append([]models.CartItem(nil), d.Items...)
		rec.OrderDetails = &d
	}
	return rec
}
