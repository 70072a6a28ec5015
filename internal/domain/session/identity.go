package session

import (
	"fmt"
	"math/rand"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewIdentity mints user_<unix-millis>_<9 base36 chars>. Collisions are not
// guarded against; the token only names a purchase session.
func NewIdentity(now time.Time) Identity {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36[rand.Intn(len(base36))]
	}
	return Identity(fmt.Sprintf("user_%d_%s", now.UnixMilli(), suffix))
}
