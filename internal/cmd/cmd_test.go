package cmd

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corefuzz/corefuzz/internal/coord"
)

func TestMasterAndWorkerSubcommandsRegistered(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"master", "worker"} {
		if !names[name] {
			t.Errorf("%q subcommand not registered on root command", name)
		}
	}
}

func TestWorkerWIDFlagRegistered(t *testing.T) {
	root := NewRootCmd()
	for _, c := range root.Commands() {
		if c.Name() == "worker" {
			if f := c.Flags().Lookup("wid"); f == nil {
				t.Fatal("--wid flag not registered on worker command")
			} else if f.DefValue != "0" {
				t.Errorf("--wid default = %q, want %q", f.DefValue, "0")
			}
			return
		}
	}
	t.Fatal("worker command not found")
}

func TestRngAdapterDelegatesToUnderlyingSource(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	want := r.Intn(50)
	r2 := rand.New(rand.NewSource(7))
	a2 := rngAdapter{r2}
	got := a2.Intn(50)
	if got != want {
		t.Fatalf("Intn mismatch: got %d want %d", got, want)
	}
}

func TestLoadOrNewFSMFallsBackWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	f, err := loadOrNewFSM(filepath.Join(dir, "savedFSM.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.InitState != initState {
		t.Fatalf("InitState = %q, want %q", f.InitState, initState)
	}
}

func TestLoadOrNewFSMFallsBackWhenFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "savedFSM.json")
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := loadOrNewFSM(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.InitState != initState {
		t.Fatalf("InitState = %q, want %q", f.InitState, initState)
	}
}

func TestLoadOrNewFSMLoadsSavedSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "savedFSM.json")
	original, err := loadOrNewFSM(filepath.Join(dir, "nonexistent.json"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := original.Save()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadOrNewFSM(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.InitState != original.InitState {
		t.Fatalf("InitState = %q, want %q", loaded.InitState, original.InitState)
	}
}

func TestLoadOrNewScheduleFallsBackWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	rng := rngAdapter{rand.New(rand.NewSource(1))}
	s, err := loadOrNewSchedule(filepath.Join(dir, "savedMCTS_amf.json"), initState, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Root == nil {
		t.Fatal("expected a root node on a fresh schedule")
	}
}

func TestWaitForEpochReturnsOnceAdvanced(t *testing.T) {
	dir := t.TempDir()
	ctrl, err := coord.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SetEpoch(1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := waitForEpoch(ctx, ctrl); err != nil {
		t.Fatalf("waitForEpoch returned error: %v", err)
	}
}

func TestWaitForEpochHonorsContextCancellation(t *testing.T) {
	dir := t.TempDir()
	ctrl, err := coord.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitForEpoch(ctx, ctrl); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
