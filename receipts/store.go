// Package receipts keeps short-lived records of settled transaction
// signatures for replay protection and audit.
package receipts

import (
	"sync"
	"time"

	"github.com/vitwit/x402-facilitator/types"
)

// DefaultTTL bounds how long a settled signature is considered used.
const DefaultTTL = 5 * time.Minute

// Clock abstracts time.Now for TTL tests.
type Clock func() time.Time

// Store is a TTL-bounded, single-process, best-effort record of settled
// signatures. It is the only structure shared across concurrent requests;
// the mutex guards every access. Expiry is lazy on reads and opportunistic
// on every insert, never a background timer.
type Store struct {
	mu      sync.Mutex
	entries map[string]types.SettlementRecord
	ttl     time.Duration
	now     Clock
}

type Option func(*Store)

// WithClock injects a clock, for tests.
func WithClock(now Clock) Option {
	return func(s *Store) { s.now = now }
}

func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		entries: make(map[string]types.SettlementRecord),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store inserts a record for a settled signature and purges any expired
// entries in the same call. Inserting an existing signature replaces the
// record; signatures are ledger-unique, so a collision within the TTL
// window only happens when the same settlement is recorded twice.
func (s *Store) Store(signature, payer string, amount uint64, resourcePath string) types.SettlementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for sig, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, sig)
		}
	}

	record := types.SettlementRecord{
		Signature:    signature,
		Payer:        payer,
		Amount:       amount,
		ResourcePath: resourcePath,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.entries[signature] = record
	return record
}

// IsUsed reports whether a live record exists for the signature, lazily
// expiring a stale one.
func (s *Store) IsUsed(signature string) bool {
	_, ok := s.Get(signature)
	return ok
}

// Get returns the live record for a signature, if any.
func (s *Store) Get(signature string) (types.SettlementRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[signature]
	if !ok {
		return types.SettlementRecord{}, false
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.entries, signature)
		return types.SettlementRecord{}, false
	}
	return entry, true
}

// Len reports the number of records currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
