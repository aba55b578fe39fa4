package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

const verificationCodeDigits = 6

type verificationEntry struct {
	code    string
	expires time.Time
}

// VerificationStore holds pending email verification codes, one per address.
// It lives as long as the process that owns it and is safe for concurrent use.
type VerificationStore struct {
	mu    sync.Mutex
	codes map[string]verificationEntry
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{codes: make(map[string]verificationEntry)}
}

// Put replaces any pending code for email.
func (s *VerificationStore) Put(email, code string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = verificationEntry{code: code, expires: expires}
}

// Consume reports whether code is the live code for email. A matching code
// is removed so it cannot be used twice.
func (s *VerificationStore) Consume(email, code string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[email]
	if !ok {
		return false
	}
	if !now.Before(entry.expires) {
		delete(s.codes, email)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(code)) != 1 {
		return false
	}
	delete(s.codes, email)
	return true
}

// CleanupExpired drops every code that has expired by now and returns how
// many were removed.
func (s *VerificationStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for email, entry := range s.codes {
		if !now.Before(entry.expires) {
			delete(s.codes, email)
			removed++
		}
	}
	return removed
}

func (s *VerificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// RunCleanup sweeps expired codes every interval until ctx is cancelled.
func RunCleanup(ctx context.Context, store *VerificationStore, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Verification cleanup stopped")
			return
		case now := <-ticker.C:
			if n := store.CleanupExpired(now); n > 0 {
				logger.Debug("Expired verification codes removed", zap.Int("count", n))
			}
		}
	}
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", verificationCodeDigits, n.Int64()), nil
}
