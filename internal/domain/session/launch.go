package session

import (
	"fmt"
	"net/url"
	"strings"
)

// Launch carries the inbound parameters of an application load, usually
// the query string of a redirect back from checkout.
type Launch struct {
	UserID         string
	PaymentSuccess bool
}

// ParseLaunch reads user_id and payment=success from a URL or a bare query string.
func ParseLaunch(raw string) (Launch, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Launch{}, nil
	}
	if !strings.Contains(raw, "://") {
		q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
		if err != nil {
			return Launch{}, fmt.Errorf("parse launch query: %w", err)
		}
		return LaunchFromQuery(q), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Launch{}, fmt.Errorf("parse launch url: %w", err)
	}
	return LaunchFromQuery(u.Query()), nil
}

func LaunchFromQuery(q url.Values) Launch {
	return Launch{
		UserID:         strings.TrimSpace(q.Get("user_id")),
		PaymentSuccess: q.Get("payment") == "success",
	}
}
