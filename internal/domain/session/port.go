package session

import "context"

// Store is the key-value capability behind identity and access cache.
// Get reports found=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Verdict is the remote authority's answer for one identity.
type Verdict struct {
	HasAccess bool
	IsPaid    bool
	ExpiresAt string
}

// Granted requires both flags.
func (v Verdict) Granted() bool { return v.HasAccess && v.IsPaid }

// Authority is the remote source of truth on paid access.
type Authority interface {
	CheckAccess(ctx context.Context, id Identity) (Verdict, error)
}
