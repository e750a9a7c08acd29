package master

import (
	"os/exec"
	"testing"
	"time"
)

func TestContainsHealthLineMatchesSubstring(t *testing.T) {
	log := []byte("2026-07-31 gNB started\n2026-07-31 NG Setup procedure is successful\n")
	if !containsHealthLine(log) {
		t.Fatal("expected health line to be found")
	}
}

func TestContainsHealthLineMissing(t *testing.T) {
	if containsHealthLine([]byte("gNB started, waiting for AMF\n")) {
		t.Fatal("expected no match")
	}
}

// TestStopWorkersEscalatesToKillOnStubbornProcess spawns a process that
// ignores SIGINT and verifies stopWorkers falls back to SIGKILL within
// its 5s grace window rather than hanging indefinitely.
func TestStopWorkersEscalatesToKillOnStubbornProcess(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' INT; sleep 30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn test process: %v", err)
	}

	m := &Master{}
	done := make(chan struct{})
	go func() {
		m.stopWorkers([]*exec.Cmd{cmd})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(8 * time.Second):
		cmd.Process.Kill()
		t.Fatal("stopWorkers did not return within the escalation window")
	}
}
