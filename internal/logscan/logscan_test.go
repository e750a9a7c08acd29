package logscan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp log: %v", err)
	}
	return path
}

func TestScanCrashIncidentsClassifiesByTagThenContext(t *testing.T) {
	content := "normal line\n[amf] backtrace:\n  frame 0\n  frame 1\nassert failed\n"
	path := writeTemp(t, content)

	incidents, err := ScanCrashIncidents(path, 6)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	amfOK, amfIncidents := CheckAMFCrash(incidents)
	if !amfOK || len(amfIncidents) == 0 {
		t.Fatalf("expected an amf incident, got %+v", incidents)
	}

	smfOK, _ := CheckSMFCrash(incidents)
	if smfOK {
		t.Fatal("did not expect any smf incident")
	}

	// The bare "assert failed" line carries no tag of its own; the ±6-line
	// context window around it holds the [amf] tag three lines earlier, so
	// it classifies as amf.
	found := false
	for _, inc := range incidents {
		if inc.Keyword == "assert" && inc.Component == ComponentAMF {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bare assert line to classify as amf via the context window: %+v", incidents)
	}
}

func TestDrainErrorSinceLastReadPersistsPosition(t *testing.T) {
	path := writeTemp(t, "boot ok\n")
	s := NewGNBScanner(path)

	if _, ok, err := s.DrainErrorSinceLastRead(); err != nil || ok {
		t.Fatalf("expected no cause on first read, got ok=%v err=%v", ok, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("Error indication received Cause: N2/unknown PDU session ID\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	cause, ok, err := s.DrainErrorSinceLastRead()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !ok {
		t.Fatal("expected a cause after appending an error-indication line")
	}
	if cause != "N2/unknown PDU session ID" {
		t.Fatalf("unexpected normalized cause: %q", cause)
	}

	// Second read with nothing new appended should find nothing.
	if _, ok, err := s.DrainErrorSinceLastRead(); err != nil || ok {
		t.Fatalf("expected no new cause on repeat read, got ok=%v err=%v", ok, err)
	}
}

func TestExtractCauseBracketShape(t *testing.T) {
	cause, ok := extractCause("gNB log: cause[Radio Network] unspecified")
	if !ok {
		t.Fatal("expected a match")
	}
	if cause != "Radio Network/unspecified" {
		t.Fatalf("unexpected cause: %q", cause)
	}
}
