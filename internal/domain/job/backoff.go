package job

import "time"

// BackoffPolicy computes retry delays that double with each attempt.
type BackoffPolicy struct {
	base time.Duration
}

// NewBackoffPolicy constructs a BackoffPolicy. A non-positive base falls back
// to one second.
func NewBackoffPolicy(base time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = time.Second
	}
	return &BackoffPolicy{base: base}
}

// Base returns the delay applied after the first failed attempt.
func (p *BackoffPolicy) Base() time.Duration {
	return p.base
}

// Delay returns the delay to apply before the attempt following retryCount
// failures: base * 2^retryCount, capped at one hour.
func (p *BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}
