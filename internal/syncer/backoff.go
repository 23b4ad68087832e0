package syncer

import "time"

// Default backoff bounds for retrying non-terminal failures.
const (
	DefaultBaseDelay = 1000 * time.Millisecond
	DefaultMaxDelay  = 30000 * time.Millisecond
)

// backoffDelay computes min(max, base * 2^n) for retry attempt n.
// The shift is guarded so large n cannot overflow into a negative duration.
func backoffDelay(base, max time.Duration, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= 31 {
		return max
	}
	d := base << uint(n)
	if d <= 0 || d > max {
		return max
	}
	return d
}
