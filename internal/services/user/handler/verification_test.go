package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationStoreExpiry(t *testing.T) {
	store := NewVerificationStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Put("a@example.com", "123456", now.Add(time.Minute))
	store.Put("b@example.com", "654321", now.Add(time.Hour))

	assert.False(t, store.Consume("a@example.com", "123456", now.Add(time.Minute)))
	assert.Equal(t, 1, store.Len())

	assert.Equal(t, 0, store.CleanupExpired(now.Add(30*time.Minute)))
	assert.Equal(t, 1, store.CleanupExpired(now.Add(time.Hour)))
	assert.Zero(t, store.Len())
}

func TestVerificationStoreWrongCodeKeepsEntry(t *testing.T) {
	store := NewVerificationStore()
	now := time.Now()
	store.Put("a@example.com", "123456", now.Add(time.Minute))

	assert.False(t, store.Consume("a@example.com", "000000", now))
	assert.True(t, store.Consume("a@example.com", "123456", now))
	assert.False(t, store.Consume("a@example.com", "123456", now))
}

func TestRunCleanupSweepsUntilCancelled(t *testing.T) {
	store := NewVerificationStore()
	store.Put("a@example.com", "123456", time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, store, 5*time.Millisecond, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode()
	require.NoError(t, err)
	assert.Len(t, code, verificationCodeDigits)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}
