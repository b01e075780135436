package provider

import (
	"context"
	"time"

	"mcpdesk/config"
)

const (
	probeAttempts       = 3
	defaultProbeBackoff = time.Second
)

// retryTransient runs fn up to attempts times, sleeping backoff between
// tries, as long as it fails with a TransientError. Any other outcome is
// returned immediately.
func retryTransient(ctx context.Context, providerID string, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		config.DebugLog.WithField("attempt", attempt).Printf("[Provider] %s probe failed, retrying in %s: %v", providerID, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return err
}

func probeBackoff(cfg Config) time.Duration {
	if cfg.ProbeBackoff > 0 {
		return cfg.ProbeBackoff
	}
	return defaultProbeBackoff
}
