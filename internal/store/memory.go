package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkout-relay/internal/model"
)

// Memory is a process-local Store. It is the single-node fallback and the
// backend used by tests; state is lost on restart and not shared between instances.
type Memory struct {
	mu       sync.Mutex
	settings *model.Settings
	sessions map[string]*model.CheckoutSession
	stats    map[string]*model.DailyStats
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*model.CheckoutSession),
		stats:    make(map[string]*model.DailyStats),
		now:      time.Now,
	}
}

func (m *Memory) GetSettings(ctx context.Context) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, ErrNotFound
	}
	return m.settings.Clone(), nil
}

func (m *Memory) UpdateSettings(ctx context.Context, fn func(*model.Settings) error) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.settings.Clone()
	if cur == nil {
		cur = &model.Settings{}
	}
	cur.NormalizeAccounts()
	if err := fn(cur); err != nil {
		return nil, err
	}
	m.settings = cur.Clone()
	return cur, nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) PutSession(ctx context.Context, s *model.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	c.UpdatedAt = m.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	m.sessions[s.SessionID] = c
	return nil
}

func (m *Memory) UpdateSession(ctx context.Context, id string, fn func(*model.CheckoutSession) error) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = m.now().UTC()
	m.sessions[id] = c.Clone()
	return c, nil
}

func (m *Memory) RecordPayment(ctx context.Context, day, account string, cents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.stats[day]
	if !ok {
		d = &model.DailyStats{Date: day}
		m.stats[day] = d
	}
	d.Add(account, cents, m.now().UTC())
	return nil
}

func (m *Memory) GetDailyStats(ctx context.Context, day string) (*model.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.stats[day]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStats(d), nil
}

func (m *Memory) ListDailyStats(ctx context.Context, from, to string) ([]model.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DailyStats, 0)
	for day, d := range m.stats {
		if day >= from && day <= to {
			out = append(out, *cloneStats(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *Memory) Close() error { return nil }

func cloneStats(d *model.DailyStats) *model.DailyStats {
	c := *d
	c.Accounts = make(map[string]model.AccountTotals, len(d.Accounts))
	for k, v := range d.Accounts {
		c.Accounts[k] = v
	}
	return &c
}

var _ Store = (*Memory)(nil)
