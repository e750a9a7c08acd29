package coord

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestEpochAbsentReadsAsZero(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	v, err := d.Epoch()
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
}

func TestAdvanceEpochIsMonotonic(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var last int64
	for i := 0; i < 5; i++ {
		next, err := d.AdvanceEpoch()
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if next <= last {
			t.Fatalf("epoch did not strictly increase: %d -> %d", last, next)
		}
		last = next
	}
}

func TestResetPendingLifecycle(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.IsResetPending() {
		t.Fatal("expected no reset pending initially")
	}
	if err := d.MarkResetPending(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !d.IsResetPending() {
		t.Fatal("expected reset pending after mark")
	}
	if err := d.ClearResetPending(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if d.IsResetPending() {
		t.Fatal("expected no reset pending after clear")
	}
}

func TestRequestResetAndClear(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.RequestReset(3, 1234, "init_connect_timeout"); err != nil {
		t.Fatalf("request: %v", err)
	}
	has, err := d.HasPendingRequests()
	if err != nil || !has {
		t.Fatalf("expected pending request, has=%v err=%v", has, err)
	}
	if err := d.ClearRequests(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	has, err = d.HasPendingRequests()
	if err != nil || has {
		t.Fatalf("expected no pending requests after clear, has=%v err=%v", has, err)
	}
}

func TestWaitWhileResetPendingReturnsFalseOnTimeout(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.MarkResetPending(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	ok := d.WaitWhileResetPending(context.Background(), 50*time.Millisecond, rng)
	if ok {
		t.Fatal("expected timeout (false) since reset_pending was never cleared")
	}
}

func TestWaitForEpochAtLeastProceedsOnTimeoutWithLatestValue(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.SetEpoch(2); err != nil {
		t.Fatalf("set: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	got, advanced := d.WaitForEpochAtLeast(context.Background(), 5, 50*time.Millisecond, rng)
	if advanced {
		t.Fatal("expected no advance within timeout")
	}
	if got != 2 {
		t.Fatalf("expected latest observed epoch 2, got %d", got)
	}
}
