package storage

import (
	"context"
	"sync"

	"pricewatch/models"
)

// MemoryStore keeps everything in process memory. Used by tests and the
// "memory" storage type.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]models.Item
	settings map[string]models.DomainSetting
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]models.Item),
		settings: make(map[string]models.DomainSetting),
	}
}

func (m *MemoryStore) ListItems(_ context.Context) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Clone())
	}
	SortByPosition(out)
	return out, nil
}

func (m *MemoryStore) GetItem(_ context.Context, id string) (models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[id]
	if !ok {
		return models.Item{}, ErrNotFound
	}
	return it.Clone(), nil
}

func (m *MemoryStore) SaveItem(_ context.Context, item models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MemoryStore) SaveItems(_ context.Context, items []models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = it.Clone()
	}
	return nil
}

func (m *MemoryStore) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) ListDomainSettings(_ context.Context) ([]models.DomainSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.DomainSetting, 0, len(m.settings))
	for _, s := range m.settings {
		s.PriceSelectors = append([]string(nil), s.PriceSelectors...)
		out = append(out, s)
	}
	sortSettings(out)
	return out, nil
}

func (m *MemoryStore) SaveDomainSetting(_ context.Context, setting models.DomainSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setting.PriceSelectors = append([]string(nil), setting.PriceSelectors...)
	m.settings[setting.Domain] = setting
	return nil
}

func (m *MemoryStore) ReplaceDomainSettings(_ context.Context, settings []models.DomainSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = make(map[string]models.DomainSetting, len(settings))
	for _, s := range settings {
		s.PriceSelectors = append([]string(nil), s.PriceSelectors...)
		m.settings[s.Domain] = s
	}
	return nil
}

func (m *MemoryStore) DeleteDomainSetting(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[domain]; !ok {
		return ErrNotFound
	}
	delete(m.settings, domain)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
