package domain

import "time"

// Session identifies the caller of a cart or checkout operation. It replaces
// any framework-level request object: callers build it once per request and
// pass it down explicitly.
type Session struct {
	ID     string
	UserID string
}

// ExpiryPolicy decides how long an idle session cart is kept. Every write
// pushes the deadline forward.
type ExpiryPolicy struct {
	TTL time.Duration
}

func (p ExpiryPolicy) ExpiresAt(now time.Time) time.Time {
	return now.Add(p.TTL)
}
