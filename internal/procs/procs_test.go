package procs

import (
	"os/exec"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l.WithField("test", true)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRotateOffsetWrapsAtMax(t *testing.T) {
	m := New(Paths{}, 9000, 999700000000001, testLog())
	m.SetOffset(maxIMSIOffset)
	if got := m.RotateOffset(); got != 0 {
		t.Fatalf("expected wrap to 0, got %d", got)
	}
}

func TestSetOffsetModsLargeValues(t *testing.T) {
	m := New(Paths{}, 9000, 999700000000001, testLog())
	m.SetOffset(maxIMSIOffset + 5)
	if got := m.Offset(); got != 4 {
		t.Fatalf("expected offset wrapped to 4, got %d", got)
	}
}

func TestTerminateKillsProcessThatIgnoresSIGINT(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' INT; sleep 30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn test process: %v", err)
	}
	start := time.Now()
	terminate(testLog(), cmd.Process, 200*time.Millisecond)
	if time.Since(start) > 2*time.Second {
		t.Fatal("terminate took too long to fall back to SIGKILL")
	}
}
