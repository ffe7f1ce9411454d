package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the padding applied to responses that must not reveal
// whether an account exists
type TimingConfig struct {
	BaseDelayMs   int // Minimum response time in milliseconds
	RandomDelayMs int // Extra random jitter in milliseconds
}

// TimingDelay pads an operation to a minimum duration plus jitter
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

// Target returns the padded duration for one call: base plus random jitter
func (td *TimingDelay) Target() time.Duration {
	target := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			target += time.Duration(jitter) * time.Millisecond
		}
	}
	return target
}

// WaitFrom sleeps until at least Target() has passed since start, so the
// caller's own work counts towards the delay. Returns early if ctx is done.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}

	remaining := td.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Wait sleeps for a full Target() duration
func (td *TimingDelay) Wait(ctx context.Context) {
	td.WaitFrom(ctx, time.Now())
}
