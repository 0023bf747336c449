package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/phone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecord struct {
	hash     string
	attempts int
	used     bool
	expires  time.Time
}

// memStore mirrors RedisStore's semantics with an injectable clock.
type memStore struct {
	mu       sync.Mutex
	now      time.Time
	codes    map[string]*memRecord
	cooldown map[string]time.Time
	verified map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		codes:    map[string]*memRecord{},
		cooldown: map[string]time.Time{},
		verified: map[string]time.Time{},
	}
}

func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memStore) Save(ctx context.Context, phone, codeHash string, ttl, cooldown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.cooldown[phone]; ok && m.now.Before(until) {
		return ErrCooldown
	}
	m.cooldown[phone] = m.now.Add(cooldown)
	m.codes[phone] = &memRecord{hash: codeHash, expires: m.now.Add(ttl)}
	return nil
}

func (m *memStore) Check(ctx context.Context, phone, codeHash string, maxAttempts int) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.codes[phone]
	if !ok || !m.now.Before(rec.expires) {
		return CheckMissing, nil
	}
	if rec.used {
		return CheckMismatch, nil
	}
	if rec.hash == codeHash {
		rec.used = true
		return CheckOK, nil
	}
	rec.attempts++
	if rec.attempts >= maxAttempts {
		delete(m.codes, phone)
		return CheckBurned, nil
	}
	return CheckMismatch, nil
}

func (m *memStore) MarkVerified(ctx context.Context, phone string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[phone] = m.now.Add(ttl)
	return nil
}

func (m *memStore) IsVerified(ctx context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.verified[phone]
	return ok && m.now.Before(until), nil
}

type captureNotifier struct {
	sent chan notify.Message
}

func (c *captureNotifier) Send(ctx context.Context, msg notify.Message) error {
	c.sent <- msg
	return nil
}

func testConfig() config.OTPConfig {
	return config.OTPConfig{
		TTL:            10 * time.Minute,
		VerifiedTTL:    30 * time.Minute,
		ResendCooldown: 30 * time.Second,
		MaxAttempts:    3,
		DefaultCountry: "91",
	}
}

func newTestVerifier() (*Verifier, *memStore, *captureNotifier) {
	store := newMemStore()
	n := &captureNotifier{sent: make(chan notify.Message, 4)}
	return NewVerifier(store, n, testConfig(), time.Second), store, n
}

func TestIssueAndVerify(t *testing.T) {
	v, _, n := newTestVerifier()
	ctx := context.Background()

	number, code, err := v.Issue(ctx, "98765 43210")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", number)
	assert.Len(t, code, 6)

	select {
	case msg := <-n.sent:
		assert.Equal(t, number, msg.To)
		assert.Contains(t, msg.Body, code)
	case <-time.After(time.Second):
		t.Fatal("otp sms not dispatched")
	}

	ok, err := v.IsVerified(ctx, number)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := v.Verify(ctx, "9876543210", code)
	require.NoError(t, err)
	assert.Equal(t, number, got)

	ok, err = v.IsVerified(ctx, "+91 9876543210")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyIsSingleUse(t *testing.T) {
	v, _, _ := newTestVerifier()
	ctx := context.Background()

	_, code, err := v.Issue(ctx, "9876543210")
	require.NoError(t, err)

	_, err = v.Verify(ctx, "9876543210", code)
	require.NoError(t, err)

	_, err = v.Verify(ctx, "9876543210", code)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestVerifyExpired(t *testing.T) {
	v, store, _ := newTestVerifier()
	ctx := context.Background()

	_, code, err := v.Issue(ctx, "9876543210")
	require.NoError(t, err)

	store.advance(10*time.Minute + time.Second)

	_, err = v.Verify(ctx, "9876543210", code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyBurnsAfterMaxAttempts(t *testing.T) {
	v, _, _ := newTestVerifier()
	ctx := context.Background()

	_, code, err := v.Issue(ctx, "9876543210")
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err = v.Verify(ctx, "9876543210", wrong)
		assert.ErrorIs(t, err, ErrMismatch)
	}

	_, err = v.Verify(ctx, "9876543210", code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestIssueCooldown(t *testing.T) {
	v, store, _ := newTestVerifier()
	ctx := context.Background()

	_, _, err := v.Issue(ctx, "9876543210")
	require.NoError(t, err)

	_, _, err = v.Issue(ctx, "9876543210")
	assert.ErrorIs(t, err, ErrCooldown)

	store.advance(31 * time.Second)
	_, _, err = v.Issue(ctx, "9876543210")
	assert.NoError(t, err)
}

func TestIssueRejectsBadPhone(t *testing.T) {
	v, _, _ := newTestVerifier()
	_, _, err := v.Issue(context.Background(), "12")
	assert.ErrorIs(t, err, phone.ErrInvalidPhone)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}
