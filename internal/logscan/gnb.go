// Package logscan implements the two structured log scanners from spec
// §4.7: the radio-side (gNB) error-cause extractor and the core-side
// crash-incident scanner with component classification. Grounded on
// _examples/original_source/core_fuzzer.py (gNB regexes/drain loop) and
// _examples/original_source/crash_monitor.py (crash scanner).
package logscan

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	reErrorIndication = regexp.MustCompile(`(?i)error indication`)
	reCauseColon       = regexp.MustCompile(`(?i)Cause:\s*([^/\s]+)\s*/\s*(.+)`)
	reCauseBracket     = regexp.MustCompile(`(?i)cause\[([^\]]+)\]\s*(.+)`)
	rePlainCause       = regexp.MustCompile(`([A-Za-z0-9_-]+)\s*/\s*([A-Za-z0-9_ -]+)`)
)

// GNBScanner incrementally reads a gNB radio log and extracts error
// causes. The reader position is persistent across calls, and a log file
// that does not exist yet reads as empty (spec §4.7). If the file is
// shorter than the saved position the scanner restarts from the start; a
// replaced file that is already at least as long as the saved position is
// not detected and is read on from that position.
type GNBScanner struct {
	path   string
	offset int64
	size   int64
}

// NewGNBScanner builds a scanner with no prior read position.
func NewGNBScanner(path string) *GNBScanner {
	return &GNBScanner{path: path}
}

// normalizeCause collapses whitespace and normalizes the "/" separator, so
// a category "  N2  " with detail "  unknown   PDU " becomes
// "N2/unknown PDU". Letter case and underscores are kept as they are.
func normalizeCause(cat, detail string) string {
	cat = strings.Join(strings.Fields(cat), " ")
	detail = strings.Join(strings.Fields(detail), " ")
	return strings.TrimSpace(cat) + "/" + strings.TrimSpace(detail)
}

// extractCause tries the three shapes from spec §4.7 in order: `Cause:
// <cat>/<detail>`, `cause[<cat>] <detail>`, a plain `<cat>/<detail>`.
func extractCause(line string) (string, bool) {
	if m := reCauseColon.FindStringSubmatch(line); m != nil {
		return normalizeCause(m[1], m[2]), true
	}
	if m := reCauseBracket.FindStringSubmatch(line); m != nil {
		return normalizeCause(m[1], m[2]), true
	}
	if m := rePlainCause.FindStringSubmatch(line); m != nil {
		return normalizeCause(m[1], m[2]), true
	}
	return "", false
}

// DrainErrorSinceLastRead reads lines appended since the last call, finds
// every "Error indication" marker, extracts its cause, and returns the
// last one found (or ok=false if none appeared).
func (g *GNBScanner) DrainErrorSinceLastRead() (string, bool, error) {
	f, err := os.Open(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", false, err
	}
	if info.Size() < g.offset {
		// Log was truncated/recreated; restart from the beginning.
		g.offset = 0
	}
	if _, err := f.Seek(g.offset, io.SeekStart); err != nil {
		return "", false, err
	}

	var last string
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var read int64
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1
		if !reErrorIndication.MatchString(line) {
			continue
		}
		if cause, ok := extractCause(line); ok {
			last = cause
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, err
	}
	g.offset += read
	g.size = info.Size()
	return last, found, nil
}
