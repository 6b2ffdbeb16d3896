package session

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces resends against a configured bytes/second ceiling (SPEC_FULL.md
// §12 "Supplemented Features" item 2: speed-limited session pacing, optional,
// off by default). Grounded on golang.org/x/time/rate's token-bucket limiter,
// the same package storj-storj's satellite/metainfo/bloomrate wraps for its
// own per-key rate gating.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter builds a Limiter allowing up to bytesPerSecond sustained, with
// bursts up to burst bytes. A nil *Limiter (the zero value of *Limiter, i.e.
// "no limiter configured") always permits immediately — see Allow.
func NewLimiter(bytesPerSecond, burst int) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Allow reports whether a resend of payloadLen bytes may proceed now. A nil
// receiver (no limiter configured) always allows.
func (l *Limiter) Allow(payloadLen int) bool {
	if l == nil {
		return true
	}
	return l.bucket.AllowN(nowFunc(), payloadLen)
}

// Wait blocks until a resend of payloadLen bytes is permitted or ctx ends. A
// nil receiver returns immediately.
func (l *Limiter) Wait(ctx context.Context, payloadLen int) error {
	if l == nil {
		return nil
	}
	return l.bucket.WaitN(ctx, payloadLen)
}
