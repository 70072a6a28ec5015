package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanwahyu/leasecheck/internal/application"
	domain "github.com/bryanwahyu/leasecheck/internal/domain/session"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const module = "session"

// Manager owns the persisted identity and the cached access verdict.
// It is safe for concurrent use; the store itself is not atomic across processes.
type Manager struct {
	Store     domain.Store
	Authority domain.Authority
	Clock     application.Clock
	Logger    logger.ILogger

	// GracePeriod and SettleDelay fall back to the domain defaults when zero.
	GracePeriod time.Duration
	SettleDelay time.Duration
	NewIdentity func(now time.Time) domain.Identity

	mu     sync.RWMutex
	status domain.Status
}

// Initialize resolves identity and access once per application load.
func (m *Manager) Initialize(ctx context.Context, launch domain.Launch) (domain.Status, error) {
	m.setState(domain.StateLoading)

	stored, storedOK, err := m.storedIdentity(ctx)
	if err != nil {
		// an unreadable store must not be mistaken for a first visit
		return m.finish(false), err
	}
	var id domain.Identity
	switch {
	case launch.UserID != "":
		id = domain.Identity(launch.UserID)
		if !storedOK || id != stored {
			// new identity has unknown status
			m.persistIdentity(ctx, id)
			m.InvalidateAccess(ctx)
		}
	case storedOK:
		id = stored
	default:
		id = m.mint()
		m.persistIdentity(ctx, id)
	}

	m.mu.Lock()
	m.status.Identity = id
	m.mu.Unlock()

	if launch.PaymentSuccess {
		m.InvalidateAccess(ctx)
		if err := m.Clock.Sleep(ctx, m.settleDelay()); err != nil {
			return m.finish(false), err
		}
	}

	return m.finish(m.CheckAccess(ctx, id)), nil
}

// CheckAccess answers from a valid cache entry or asks the authority. Only
// positive cache entries short-circuit. Any failure denies access.
func (m *Manager) CheckAccess(ctx context.Context, id domain.Identity) bool {
	now := m.Clock.Now()
	if entry, ok := m.cachedAccess(ctx); ok && entry.Valid(now, m.grace()) {
		return true
	}

	verdict, err := m.Authority.CheckAccess(ctx, id)
	if err != nil {
		m.Logger.Error(module, "Access check failed", map[string]interface{}{
			"user_id": string(id),
			"error":   err,
		})
		return false
	}

	granted := verdict.Granted()
	if granted {
		m.writeCache(ctx, domain.NewAccessCacheEntry(true, verdict.ExpiresAt, m.Clock.Now()))
	} else {
		m.InvalidateAccess(ctx)
	}
	m.Logger.Info(module, "Access checked", map[string]interface{}{
		"user_id":    string(id),
		"has_access": verdict.HasAccess,
		"is_paid":    verdict.IsPaid,
		"expires_at": verdict.ExpiresAt,
	})
	return granted
}

// RefreshAccess re-verifies the current identity.
func (m *Manager) RefreshAccess(ctx context.Context) (domain.Status, error) {
	id := m.CurrentIdentity()
	if id == "" {
		return m.Status(), domain.ErrNotInitialized
	}
	m.setState(domain.StateLoading)
	return m.finish(m.CheckAccess(ctx, domain.Identity(id))), nil
}

// HandlePaymentCompleted drops the cache and re-checks after the settle delay,
// giving the billing authority time to register the payment.
func (m *Manager) HandlePaymentCompleted(ctx context.Context) (domain.Status, error) {
	id := m.CurrentIdentity()
	if id == "" {
		return m.Status(), domain.ErrNotInitialized
	}
	m.setState(domain.StateLoading)
	m.InvalidateAccess(ctx)
	if err := m.Clock.Sleep(ctx, m.settleDelay()); err != nil {
		return m.finish(false), err
	}
	return m.finish(m.CheckAccess(ctx, domain.Identity(id))), nil
}

// InvalidateAccess removes the cached verdict.
func (m *Manager) InvalidateAccess(ctx context.Context) {
	if err := m.Store.Delete(ctx, domain.AccessCacheKey); err != nil {
		m.Logger.Warn(module, "Failed to clear access cache", map[string]interface{}{"error": err.Error()})
	}
}

// Status returns a snapshot.
func (m *Manager) Status() domain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.status
	if st.State == "" {
		st.State = domain.StateUninitialized
	}
	return st
}

// CurrentIdentity is empty until Initialize has run.
func (m *Manager) CurrentIdentity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return string(m.status.Identity)
}

// HasAccess reports the last settled verdict.
func (m *Manager) HasAccess() bool {
	return m.Status().State == domain.StateGranted
}

func (m *Manager) finish(granted bool) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.HasAccess = granted
	m.status.CheckedAt = m.Clock.Now()
	if granted {
		m.status.State = domain.StateGranted
	} else {
		m.status.State = domain.StateDenied
	}
	return m.status
}

func (m *Manager) setState(s domain.State) {
	m.mu.Lock()
	m.status.State = s
	m.mu.Unlock()
}

func (m *Manager) storedIdentity(ctx context.Context) (domain.Identity, bool, error) {
	v, found, err := m.Store.Get(ctx, domain.IdentityKey)
	if err != nil {
		m.Logger.Error(module, "Failed to read stored identity", map[string]interface{}{"error": err.Error()})
		return "", false, fmt.Errorf("read stored identity: %w", err)
	}
	if !found || v == "" {
		return "", false, nil
	}
	return domain.Identity(v), true, nil
}

func (m *Manager) persistIdentity(ctx context.Context, id domain.Identity) {
	if err := m.Store.Set(ctx, domain.IdentityKey, string(id)); err != nil {
		m.Logger.Warn(module, "Failed to persist identity", map[string]interface{}{
			"user_id": string(id),
			"error":   err.Error(),
		})
	}
}

func (m *Manager) cachedAccess(ctx context.Context) (domain.AccessCacheEntry, bool) {
	raw, found, err := m.Store.Get(ctx, domain.AccessCacheKey)
	if err != nil {
		m.Logger.Warn(module, "Failed to read access cache", map[string]interface{}{"error": err.Error()})
		return domain.AccessCacheEntry{}, false
	}
	if !found {
		return domain.AccessCacheEntry{}, false
	}
	return domain.DecodeAccessCacheEntry(raw)
}

func (m *Manager) writeCache(ctx context.Context, e domain.AccessCacheEntry) {
	raw, err := e.Encode()
	if err == nil {
		err = m.Store.Set(ctx, domain.AccessCacheKey, raw)
	}
	if err != nil {
		m.Logger.Warn(module, "Failed to write access cache", map[string]interface{}{"error": err.Error()})
	}
}

func (m *Manager) mint() domain.Identity {
	if m.NewIdentity != nil {
		return m.NewIdentity(m.Clock.Now())
	}
	return domain.NewIdentity(m.Clock.Now())
}

func (m *Manager) grace() time.Duration {
	if m.GracePeriod > 0 {
		return m.GracePeriod
	}
	return domain.GracePeriod
}

func (m *Manager) settleDelay() time.Duration {
	if m.SettleDelay > 0 {
		return m.SettleDelay
	}
	return domain.PaymentSettleDelay
}
