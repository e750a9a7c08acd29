// Package coord implements the filesystem-backed master/worker
// coordination primitives from spec §4.8: an atomic epoch counter, a
// reset-pending flag, and a reset-request mailbox. Grounded on
// _examples/original_source/run_parallel.py's control-directory
// conventions, and on the teacher's internal/vm/pool_linux.go for the
// write-then-rename atomicity idiom used for inter-process signaling.
package coord

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Dir wraps a control directory holding epoch, reset_pending, and
// reset_requests/.
type Dir struct {
	root string
}

// New returns a Dir rooted at path, creating reset_requests/ if absent.
func New(path string) (*Dir, error) {
	if err := os.MkdirAll(filepath.Join(path, "reset_requests"), 0o755); err != nil {
		return nil, fmt.Errorf("coord: creating control dir: %w", err)
	}
	return &Dir{root: path}, nil
}

func (d *Dir) epochPath() string        { return filepath.Join(d.root, "epoch") }
func (d *Dir) resetPendingPath() string { return filepath.Join(d.root, "reset_pending") }
func (d *Dir) requestsDir() string      { return filepath.Join(d.root, "reset_requests") }

// Epoch reads the current epoch; an absent file reads as 0 (spec §4.8).
func (d *Dir) Epoch() (int64, error) {
	data, err := os.ReadFile(d.epochPath())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("coord: parsing epoch file: %w", err)
	}
	return v, nil
}

// writeAtomic writes data to path by writing a temp file then renaming
// it into place, so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	tmp := path + fmt.Sprintf(".tmp%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetEpoch atomically publishes a new epoch value.
func (d *Dir) SetEpoch(v int64) error {
	return writeAtomic(d.epochPath(), []byte(strconv.FormatInt(v, 10)))
}

// AdvanceEpoch reads the current epoch, increments it, and publishes
// the new value, returning it.
func (d *Dir) AdvanceEpoch() (int64, error) {
	cur, err := d.Epoch()
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := d.SetEpoch(next); err != nil {
		return 0, err
	}
	return next, nil
}

// MarkResetPending creates the reset_pending presence file.
func (d *Dir) MarkResetPending() error {
	return os.WriteFile(d.resetPendingPath(), []byte{}, 0o644)
}

// ClearResetPending removes the reset_pending presence file.
func (d *Dir) ClearResetPending() error {
	err := os.Remove(d.resetPendingPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsResetPending reports whether a reset is currently in progress.
func (d *Dir) IsResetPending() bool {
	_, err := os.Stat(d.resetPendingPath())
	return err == nil
}

// RequestReset deposits a reset request file named
// Worker<wid>_<ms-timestamp>_<reason>.req, spec §4.8.
func (d *Dir) RequestReset(wid int, nowMillis int64, reason string) error {
	name := fmt.Sprintf("Worker%d_%d_%s.req", wid, nowMillis, reason)
	return os.WriteFile(filepath.Join(d.requestsDir(), name), []byte(reason), 0o644)
}

// PendingRequests lists outstanding reset-request filenames.
func (d *Dir) PendingRequests() ([]string, error) {
	entries, err := os.ReadDir(d.requestsDir())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".req") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// HasPendingRequests reports whether any reset request is outstanding —
// the condition the master's 0.2s watcher loop polls for (spec §4.8).
func (d *Dir) HasPendingRequests() (bool, error) {
	names, err := d.PendingRequests()
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ClearRequests removes every file under reset_requests/.
func (d *Dir) ClearRequests() error {
	names, err := d.PendingRequests()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := os.Remove(filepath.Join(d.requestsDir(), n)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// watchPollInterval is the master's reset_requests/ poll cadence
// (spec §4.8: "polls reset_requests/ at 0.2 s").
const watchPollInterval = 200 * time.Millisecond

// WatchRequests polls for pending reset requests every 0.2s and invokes
// onRequest whenever any are found, until stop is closed. onRequest is
// expected to perform a full reset and then clear the requests itself.
func (d *Dir) WatchRequests(stop <-chan struct{}, onRequest func()) {
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if has, err := d.HasPendingRequests(); err == nil && has {
				onRequest()
			}
		}
	}
}
