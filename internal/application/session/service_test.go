package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/bryanwahyu/leasecheck/internal/domain/session"
	"github.com/bryanwahyu/leasecheck/internal/infra/kv"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	sleepE error
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if c.sleepE != nil {
		return c.sleepE
	}
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAuthority struct {
	mu      sync.Mutex
	verdict domain.Verdict
	err     error
	calls   []domain.Identity
}

func (a *fakeAuthority) CheckAccess(_ context.Context, id domain.Identity) (domain.Verdict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, id)
	return a.verdict, a.err
}

func (a *fakeAuthority) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fixture struct {
	mgr   *Manager
	store *kv.MemoryStore
	clock *fakeClock
	auth  *fakeAuthority
}

func newFixture() *fixture {
	f := &fixture{
		store: kv.NewMemoryStore(),
		clock: &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		auth:  &fakeAuthority{},
	}
	f.mgr = &Manager{
		Store:     f.store,
		Authority: f.auth,
		Clock:     f.clock,
		Logger:    logger.NewNop(),
		NewIdentity: func(time.Time) domain.Identity {
			return "user_minted"
		},
	}
	return f
}

func (f *fixture) seedCache(t *testing.T, e domain.AccessCacheEntry) {
	t.Helper()
	raw, err := e.Encode()
	require.NoError(t, err)
	require.NoError(t, f.store.Set(context.Background(), domain.AccessCacheKey, raw))
}

func (f *fixture) cached(t *testing.T) (domain.AccessCacheEntry, bool) {
	t.Helper()
	raw, found, err := f.store.Get(context.Background(), domain.AccessCacheKey)
	require.NoError(t, err)
	if !found {
		return domain.AccessCacheEntry{}, false
	}
	return domain.DecodeAccessCacheEntry(raw)
}

func TestInitializeMintsAndPersistsIdentity(t *testing.T) {
	f := newFixture()
	f.auth.verdict = domain.Verdict{HasAccess: true, IsPaid: true}

	st, err := f.mgr.Initialize(context.Background(), domain.Launch{})
	require.NoError(t, err)

	assert.Equal(t, domain.Identity("user_minted"), st.Identity)
	assert.Equal(t, domain.StateGranted, st.State)
	assert.True(t, f.mgr.HasAccess())

	stored, found, _ := f.store.Get(context.Background(), domain.IdentityKey)
	assert.True(t, found)
	assert.Equal(t, "user_minted", stored)

	entry, ok := f.cached(t)
	require.True(t, ok)
	assert.True(t, entry.HasAccess)
	assert.Equal(t, f.clock.Now().UnixMilli(), entry.Timestamp)
}

func TestInitializeReusesStoredIdentity(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.store.Set(context.Background(), domain.IdentityKey, "user_existing"))

	st, err := f.mgr.Initialize(context.Background(), domain.Launch{})
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("user_existing"), st.Identity)
	assert.Equal(t, []domain.Identity{"user_existing"}, f.auth.calls)
}

type flakyStore struct {
	*kv.MemoryStore
	getErr error
	sets   int
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.sets++
	return s.MemoryStore.Set(ctx, key, value)
}

func TestInitializeStoreReadErrorKeepsIdentity(t *testing.T) {
	tests := []struct {
		name   string
		launch domain.Launch
	}{
		{name: "plain launch"},
		{name: "launch with override", launch: domain.Launch{UserID: "user_other"}},
		{name: "payment return", launch: domain.Launch{PaymentSuccess: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			require.NoError(t, f.store.Set(ctx, domain.IdentityKey, "user_paid_123"))
			store := &flakyStore{MemoryStore: f.store, getErr: errors.New("i/o timeout")}
			f.mgr.Store = store
			f.auth.verdict = domain.Verdict{HasAccess: true, IsPaid: true}

			st, err := f.mgr.Initialize(ctx, tt.launch)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "i/o timeout")
			assert.Equal(t, domain.StateDenied, st.State)
			assert.False(t, st.HasAccess)
			assert.Zero(t, store.sets)
			assert.Zero(t, f.auth.callCount())

			stored, found, err := f.store.Get(ctx, domain.IdentityKey)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "user_paid_123", stored)
		})
	}
}

func TestCheckAccessCache(t *testing.T) {
	tests := []struct {
		name      string
		entry     func(now time.Time) domain.AccessCacheEntry
		verdict   domain.Verdict
		wantCalls int
		want      bool
	}{
		{
			name: "fresh positive entry skips remote",
			entry: func(now time.Time) domain.AccessCacheEntry {
				return domain.NewAccessCacheEntry(true, "", now.Add(-time.Minute))
			},
			wantCalls: 0,
			want:      true,
		},
		{
			name: "future expiry skips remote",
			entry: func(now time.Time) domain.AccessCacheEntry {
				return domain.NewAccessCacheEntry(false, now.Add(24*time.Hour).Format(time.RFC3339), now.Add(-time.Minute))
			},
			wantCalls: 0,
			want:      true,
		},
		{
			name: "stale entry asks remote",
			entry: func(now time.Time) domain.AccessCacheEntry {
				return domain.NewAccessCacheEntry(true, now.Add(time.Hour).Format(time.RFC3339), now.Add(-6*time.Minute))
			},
			verdict:   domain.Verdict{HasAccess: true, IsPaid: true},
			wantCalls: 1,
			want:      true,
		},
		{
			name: "fresh negative entry asks remote",
			entry: func(now time.Time) domain.AccessCacheEntry {
				return domain.NewAccessCacheEntry(false, "", now.Add(-time.Minute))
			},
			verdict:   domain.Verdict{HasAccess: false},
			wantCalls: 1,
			want:      false,
		},
		{
			name:      "has access but not paid is denied",
			verdict:   domain.Verdict{HasAccess: true, IsPaid: false},
			wantCalls: 1,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.entry != nil {
				f.seedCache(t, tt.entry(f.clock.Now()))
			}
			f.auth.verdict = tt.verdict

			got := f.mgr.CheckAccess(context.Background(), "user_x")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, f.auth.callCount())
		})
	}
}

func TestCheckAccessDenialClearsCache(t *testing.T) {
	f := newFixture()
	f.seedCache(t, domain.NewAccessCacheEntry(true, "", f.clock.Now().Add(-10*time.Minute)))
	f.auth.verdict = domain.Verdict{HasAccess: false, IsPaid: false}

	assert.False(t, f.mgr.CheckAccess(context.Background(), "user_x"))
	_, ok := f.cached(t)
	assert.False(t, ok)
}

func TestCheckAccessErrorKeepsCache(t *testing.T) {
	f := newFixture()
	stale := domain.NewAccessCacheEntry(true, "", f.clock.Now().Add(-10*time.Minute))
	f.seedCache(t, stale)
	f.auth.err = errors.New("connection refused")

	assert.False(t, f.mgr.CheckAccess(context.Background(), "user_x"))

	entry, ok := f.cached(t)
	require.True(t, ok)
	assert.Equal(t, stale, entry)
}

func TestInitializeOverrideIdentityInvalidatesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, domain.IdentityKey, "user_old"))
	f.seedCache(t, domain.NewAccessCacheEntry(true, "", f.clock.Now()))
	f.auth.verdict = domain.Verdict{HasAccess: false}

	st, err := f.mgr.Initialize(ctx, domain.Launch{UserID: "user_new"})
	require.NoError(t, err)

	assert.Equal(t, domain.Identity("user_new"), st.Identity)
	assert.Equal(t, domain.StateDenied, st.State)
	assert.Equal(t, []domain.Identity{"user_new"}, f.auth.calls)

	stored, _, _ := f.store.Get(ctx, domain.IdentityKey)
	assert.Equal(t, "user_new", stored)
}

func TestInitializeSameOverrideKeepsCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, domain.IdentityKey, "user_same"))
	f.seedCache(t, domain.NewAccessCacheEntry(true, "", f.clock.Now()))

	st, err := f.mgr.Initialize(ctx, domain.Launch{UserID: "user_same"})
	require.NoError(t, err)
	assert.True(t, st.HasAccess)
	assert.Zero(t, f.auth.callCount())
}

func TestInitializePaymentSuccessWaitsAndRechecks(t *testing.T) {
	f := newFixture()
	f.mgr.SettleDelay = 3 * time.Second
	f.seedCache(t, domain.NewAccessCacheEntry(true, "", f.clock.Now()))
	f.auth.verdict = domain.Verdict{HasAccess: true, IsPaid: true, ExpiresAt: "2030-01-01T00:00:00Z"}

	st, err := f.mgr.Initialize(context.Background(), domain.Launch{PaymentSuccess: true})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{3 * time.Second}, f.clock.slept)
	assert.Equal(t, 1, f.auth.callCount())
	assert.True(t, st.HasAccess)

	entry, ok := f.cached(t)
	require.True(t, ok)
	assert.Equal(t, "2030-01-01T00:00:00Z", entry.ExpiresAt)
}

func TestInitializeCancelledDuringSettle(t *testing.T) {
	f := newFixture()
	f.clock.sleepE = context.Canceled

	st, err := f.mgr.Initialize(context.Background(), domain.Launch{PaymentSuccess: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StateDenied, st.State)
	assert.Zero(t, f.auth.callCount())
}

func TestRefreshAndPaymentRequireInitialize(t *testing.T) {
	f := newFixture()

	_, err := f.mgr.RefreshAccess(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = f.mgr.HandlePaymentCompleted(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	assert.Equal(t, domain.StateUninitialized, f.mgr.Status().State)
	assert.True(t, f.mgr.Status().Loading())
}

func TestHandlePaymentCompletedFlipsToGranted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	st, err := f.mgr.Initialize(ctx, domain.Launch{})
	require.NoError(t, err)
	require.False(t, st.HasAccess)

	f.auth.verdict = domain.Verdict{HasAccess: true, IsPaid: true}
	st, err = f.mgr.HandlePaymentCompleted(ctx)
	require.NoError(t, err)
	assert.True(t, st.HasAccess)
	assert.Equal(t, []time.Duration{domain.PaymentSettleDelay}, f.clock.slept)
	assert.Equal(t, 2, f.auth.callCount())
}

func TestRefreshAccessAfterGraceAsksAgain(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.auth.verdict = domain.Verdict{HasAccess: true, IsPaid: true}

	_, err := f.mgr.Initialize(ctx, domain.Launch{})
	require.NoError(t, err)

	_, err = f.mgr.RefreshAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.auth.callCount(), "cache still fresh")

	f.clock.advance(domain.GracePeriod)
	f.auth.verdict = domain.Verdict{}
	st, err := f.mgr.RefreshAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.auth.callCount())
	assert.False(t, st.HasAccess)
}
