package session

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryRevoker struct {
	entries *lru.LRU[string, time.Time]
	now     func() time.Time
}

// NewMemory creates an in-process revocation store. Entries expire after
// cfg.TokenTTL; when more than cfg.MaxEntries are held the least recently
// revoked are dropped first.
func NewMemory(cfg Config) Revoker {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &memoryRevoker{
		entries: lru.NewLRU[string, time.Time](cfg.MaxEntries, nil, cfg.TokenTTL),
		now:     cfg.Now,
	}
}

func (m *memoryRevoker) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	m.entries.Add(tokenID, expiresAt)
	return nil
}

func (m *memoryRevoker) Revoked(_ context.Context, tokenID string) (bool, error) {
	expiresAt, ok := m.entries.Get(tokenID)
	if !ok {
		return false, nil
	}
	if !expiresAt.IsZero() && !m.now().Before(expiresAt) {
		m.entries.Remove(tokenID)
		return false, nil
	}
	return true, nil
}

func (m *memoryRevoker) Close() error {
	m.entries.Purge()
	return nil
}
