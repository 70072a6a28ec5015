package session

import (
	"encoding/json"
	"strings"
	"time"
)

// Identity is the client-generated pseudo-user token. It is not a verified account.
type Identity string

// State of the access manager
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateGranted       State = "granted"
	StateDenied        State = "denied"
)

// Storage keys and timings shared by every client of the same store.
const (
	IdentityKey    = "leasecheck_user_id"
	AccessCacheKey = "leasecheck_access_cache"

	GracePeriod        = 5 * time.Minute
	PaymentSettleDelay = 2 * time.Second
)

// AccessCacheEntry approximates the remote authority's last verdict.
// Timestamp is in unix milliseconds.
type AccessCacheEntry struct {
	HasAccess bool   `json:"hasAccess"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// NewAccessCacheEntry stamps an entry at now.
func NewAccessCacheEntry(hasAccess bool, expiresAt string, now time.Time) AccessCacheEntry {
	return AccessCacheEntry{HasAccess: hasAccess, Timestamp: now.UnixMilli(), ExpiresAt: expiresAt}
}

func (e AccessCacheEntry) CreatedAt() time.Time { return time.UnixMilli(e.Timestamp) }

// Expiry parses ExpiresAt. A missing or unparseable value reports false.
func (e AccessCacheEntry) Expiry() (time.Time, bool) {
	raw := strings.TrimSpace(e.ExpiresAt)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Valid reports whether the entry still counts as evidence of access at now.
// Only entries younger than grace qualify, and then only with a future expiry
// or a positive verdict.
func (e AccessCacheEntry) Valid(now time.Time, grace time.Duration) bool {
	if now.Sub(e.CreatedAt()) >= grace {
		return false
	}
	if exp, ok := e.Expiry(); ok && exp.After(now) {
		return true
	}
	return e.HasAccess
}

// Encode serializes the entry for the store.
func (e AccessCacheEntry) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeAccessCacheEntry parses a stored entry; malformed input counts as absent.
func DecodeAccessCacheEntry(raw string) (AccessCacheEntry, bool) {
	if strings.TrimSpace(raw) == "" {
		return AccessCacheEntry{}, false
	}
	var e AccessCacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return AccessCacheEntry{}, false
	}
	return e, true
}

// Status is a snapshot of the manager.
type Status struct {
	State     State     `json:"state"`
	Identity  Identity  `json:"user_id,omitempty"`
	HasAccess bool      `json:"has_access"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

// Loading reports whether a check is running or has not started.
func (s Status) Loading() bool {
	return s.State == StateLoading || s.State == StateUninitialized
}
