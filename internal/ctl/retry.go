package ctl

import "time"

// RetryPolicy returns the delay before reconnect attempt n (1-based).
type RetryPolicy func(attempt int) time.Duration

// FixedDelay returns a policy that waits the same delay between attempts.
func FixedDelay(d time.Duration) RetryPolicy {
	return func(int) time.Duration { return d }
}

// DefaultRetry is the reconnect policy used by watch.
var DefaultRetry = FixedDelay(3 * time.Second)
