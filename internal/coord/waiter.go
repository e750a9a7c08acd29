package coord

import (
	"context"
	"math/rand"
	"time"
)

// pollInterval and pollJitterMax implement spec §4.8's worker polling
// cadence: "waits for epoch changes (polling every 0.2 s + random 0.0–0.3 s)".
const (
	pollInterval  = 200 * time.Millisecond
	pollJitterMax = 300 * time.Millisecond
)

// WaitWhileResetPending blocks until reset_pending disappears, bounded
// by timeout (spec §4.8 worker loop: "close sockets and block until it
// disappears and epoch advances (bounded timeouts 180/300/600 s)").
// Returns true if it observed the flag clear, false if it timed out.
func (d *Dir) WaitWhileResetPending(ctx context.Context, timeout time.Duration, rng *rand.Rand) bool {
	deadline := time.Now().Add(timeout)
	for d.IsResetPending() {
		if time.Now().After(deadline) {
			return false
		}
		if !sleepJittered(ctx, rng) {
			return false
		}
	}
	return true
}

// WaitForEpochAtLeast blocks until Epoch() >= target or timeout elapses,
// per the same bounded-wait rule; if the epoch never advances within
// timeout, the caller proceeds with the latest observed value regardless
// (spec §4.8 edge case 5).
func (d *Dir) WaitForEpochAtLeast(ctx context.Context, target int64, timeout time.Duration, rng *rand.Rand) (int64, bool) {
	deadline := time.Now().Add(timeout)
	for {
		cur, err := d.Epoch()
		if err == nil && cur >= target {
			return cur, true
		}
		if time.Now().After(deadline) {
			cur, _ := d.Epoch()
			return cur, false
		}
		if !sleepJittered(ctx, rng) {
			cur, _ := d.Epoch()
			return cur, false
		}
	}
}

// WaitForEpochFirstRun blocks until epoch >= 1, the "wait until epoch
// >= 1 before first run" startup gate (spec §4.8), with no timeout.
func (d *Dir) WaitForEpochFirstRun(ctx context.Context, rng *rand.Rand) {
	for {
		cur, err := d.Epoch()
		if err == nil && cur >= 1 {
			return
		}
		if !sleepJittered(ctx, rng) {
			return
		}
	}
}

func sleepJittered(ctx context.Context, rng *rand.Rand) bool {
	jitter := time.Duration(rng.Float64() * float64(pollJitterMax))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(pollInterval + jitter):
		return true
	}
}
