package logscan

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

var (
	ansiRE  = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	crashRE = regexp.MustCompile(`(?i)fatal|fata|assert|assertion|backtrace|abort|panic|segfault|sigsegv|core dumped`)
	tagRE   = regexp.MustCompile(`\[(amf|smf|core)\]`)
	amfRE   = regexp.MustCompile(`(?i)\bamf\b`)
	smfRE   = regexp.MustCompile(`(?i)\bsmf\b`)
)

// Component names a crash's subsystem.
type Component string

const (
	ComponentAMF     Component = "amf"
	ComponentSMF     Component = "smf"
	ComponentCore    Component = "core"
	ComponentUnknown Component = "unknown"
)

// Incident is one crash-keyword hit (spec §4.7).
type Incident struct {
	Component Component
	LineNo    int
	Keyword   string
	Text      string
}

// StripANSI removes terminal color/cursor escape sequences.
func StripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// classifyComponent implements spec §4.7's classification order: (1) a
// tag on the line itself, (2) an exclusive amf/smf token on the line,
// (3) a ±lookaround line context window biased by exclusive amf/smf
// presence, (4) the last-seen tag carried forward while scanning, as a
// fall-through once the window is inconclusive, (5) unknown.
func classifyComponent(lines []string, idx, lookaround int, lastSeen Component) Component {
	if m := tagRE.FindStringSubmatch(lines[idx]); m != nil {
		return Component(strings.ToLower(m[1]))
	}

	hasAMF := amfRE.MatchString(lines[idx])
	hasSMF := smfRE.MatchString(lines[idx])
	if hasAMF && !hasSMF {
		return ComponentAMF
	}
	if hasSMF && !hasAMF {
		return ComponentSMF
	}

	start := idx - lookaround
	if start < 0 {
		start = 0
	}
	end := idx + lookaround + 1
	if end > len(lines) {
		end = len(lines)
	}
	windowAMF, windowSMF := false, false
	for i := start; i < end; i++ {
		if i == idx {
			continue
		}
		if tag := tagRE.FindStringSubmatch(lines[i]); tag != nil {
			switch tag[1] {
			case "amf":
				windowAMF = true
			case "smf":
				windowSMF = true
			}
			continue
		}
		if amfRE.MatchString(lines[i]) {
			windowAMF = true
		}
		if smfRE.MatchString(lines[i]) {
			windowSMF = true
		}
	}
	if windowAMF && !windowSMF {
		return ComponentAMF
	}
	if windowSMF && !windowAMF {
		return ComponentSMF
	}
	if lastSeen != "" {
		return lastSeen
	}
	return ComponentUnknown
}

// ScanCrashIncidents strips ANSI codes and scans every line of the core
// log for a crash keyword, returning classified incidents in order.
func ScanCrashIncidents(coreLogPath string, lookaround int) ([]Incident, error) {
	f, err := os.Open(coreLogPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rawLines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		rawLines = append(rawLines, StripANSI(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var incidents []Incident
	var lastSeen Component
	for i, line := range rawLines {
		if tag := tagRE.FindStringSubmatch(line); tag != nil {
			lastSeen = Component(strings.ToLower(tag[1]))
		}
		kw := crashRE.FindString(line)
		if kw == "" {
			continue
		}
		comp := classifyComponent(rawLines, i, lookaround, lastSeen)
		incidents = append(incidents, Incident{
			Component: comp,
			LineNo:    i + 1,
			Keyword:   strings.ToLower(kw),
			Text:      line,
		})
	}
	return incidents, nil
}

// CheckAMFCrash filters incidents for the access-management component.
func CheckAMFCrash(incidents []Incident) (bool, []Incident) {
	return filterComponent(incidents, ComponentAMF)
}

// CheckSMFCrash filters incidents for the session-management component.
func CheckSMFCrash(incidents []Incident) (bool, []Incident) {
	return filterComponent(incidents, ComponentSMF)
}

func filterComponent(incidents []Incident, comp Component) (bool, []Incident) {
	var out []Incident
	for _, inc := range incidents {
		if inc.Component == comp {
			out = append(out, inc)
		}
	}
	return len(out) > 0, out
}
