package storage

import (
	"context"
	"sync"
	"time"

	"github.com/andyleap/oidcflow/internal/models"
)

type MemoryCodeStore struct {
	grants map[string]*models.AuthorizationGrant
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryCodeStore(ttl time.Duration) *MemoryCodeStore {
	return newMemoryCodeStore(ttl, time.Now)
}

func newMemoryCodeStore(ttl time.Duration, now func() time.Time) *MemoryCodeStore {
	store := &MemoryCodeStore{
		grants: make(map[string]*models.AuthorizationGrant),
		ttl:    normalizeTTL(ttl),
		now:    now,
		stop:   make(chan struct{}),
	}

	go store.cleanupRoutine(time.Minute)

	return store
}

func (m *MemoryCodeStore) Issue(ctx context.Context, clientID, scope string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.grants[code] = &models.AuthorizationGrant{
		Code:      code,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	return code, nil
}

// Redeem marks the grant consumed under the store lock, so concurrent
// redemptions of one code see exactly one winner.
func (m *MemoryCodeStore) Redeem(ctx context.Context, code, clientID string) (*models.AuthorizationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, exists := m.grants[code]
	if !exists || grant.Consumed || grant.ClientID != clientID {
		return nil, ErrInvalidGrant
	}
	if grant.Expired(m.now()) {
		delete(m.grants, code)
		return nil, ErrInvalidGrant
	}

	grant.Consumed = true
	redeemed := *grant
	return &redeemed, nil
}

// Close stops the background sweep.
func (m *MemoryCodeStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// cleanupRoutine drops consumed and expired grants
func (m *MemoryCodeStore) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryCodeStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for code, grant := range m.grants {
		if grant.Consumed || grant.Expired(now) {
			delete(m.grants, code)
		}
	}
}
