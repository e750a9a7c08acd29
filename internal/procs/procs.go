// Package procs manages the lifecycle of the core, gNB, and UE
// subprocesses a fuzz worker drives (spec §4.8 "component lifecycle").
// Grounded on _examples/original_source/setup_helper.py for the
// start/stop sequence and IMSI-offset rotation, and on the teacher's
// internal/exec package (src/internal/exec/exec.go,
// go_src/internal/exec/exec_unix.go) for process-group management and
// SIGINT-then-SIGKILL shutdown.
package procs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Paths names the on-disk locations a Manager needs: the Open5GS and
// UERANSIM installations, and the per-worker log directory.
type Paths struct {
	Open5GSPath  string
	UERANSIMPath string
	LogDir       string
}

// Manager starts, tracks, and tears down one worker's core/gNB/UE
// subprocess trio, rotating the UE's IMSI offset across restarts the
// way setOffset/getOffset do in setup_helper.py.
type Manager struct {
	paths      Paths
	portBase   int
	imsiBase   int64
	imsiOffset int64
	log        *logrus.Entry

	core *os.Process
	gnb  *os.Process
	ues  [3]*os.Process
}

// maxIMSIOffset bounds the rotation (setup_helper.py's MAX_IMSI_OFFSET).
const maxIMSIOffset = 98

// New builds a Manager for one worker's component set.
func New(paths Paths, portBase int, imsiBase int64, log *logrus.Entry) *Manager {
	return &Manager{paths: paths, portBase: portBase, imsiBase: imsiBase, log: log}
}

// SetOffset pins the IMSI offset used by the next StartUE call.
func (m *Manager) SetOffset(offset int64) {
	m.imsiOffset = offset % (maxIMSIOffset + 1)
}

// Offset returns the current IMSI offset.
func (m *Manager) Offset() int64 {
	return m.imsiOffset
}

// RotateOffset advances the offset by one, wrapping at maxIMSIOffset,
// matching startUE2/startUE3's `IMSI_OFFSET += 1` pattern.
func (m *Manager) RotateOffset() int64 {
	m.imsiOffset = (m.imsiOffset + 1) % (maxIMSIOffset + 1)
	return m.imsiOffset
}

func (m *Manager) logFile(name string) (*os.File, error) {
	if err := os.MkdirAll(m.paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("procs: creating log dir: %w", err)
	}
	return os.Create(filepath.Join(m.paths.LogDir, name))
}

func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// StartCore launches the 5G core process against the configured
// Open5GS sample config, mirroring setup_helper.py's startCore.
func (m *Manager) StartCore() error {
	out, err := m.logFile("core.log")
	if err != nil {
		return err
	}
	cfg := filepath.Join(m.paths.Open5GSPath, "build", "configs", "sample.yaml")
	cmd := exec.Command("5gc", "-c", cfg)
	cmd.Stdout, cmd.Stderr = out, out
	cmd.SysProcAttr = processGroupAttr()
	if err := cmd.Start(); err != nil {
		out.Close()
		return fmt.Errorf("procs: starting core: %w", err)
	}
	m.core = cmd.Process
	m.log.WithField("pid", cmd.Process.Pid).Info("core started")
	return nil
}

// StartGNB launches the radio simulator, mirroring startGNB.
func (m *Manager) StartGNB() error {
	out, err := m.logFile("gnb.log")
	if err != nil {
		return err
	}
	cfg := filepath.Join(m.paths.UERANSIMPath, "config", "open5gs-gnb.yaml")
	cmd := exec.Command("nr-gnb", "-c", cfg)
	cmd.Stdout, cmd.Stderr = out, out
	cmd.SysProcAttr = processGroupAttr()
	if err := cmd.Start(); err != nil {
		out.Close()
		return fmt.Errorf("procs: starting gNB: %w", err)
	}
	m.gnb = cmd.Process
	m.log.WithField("pid", cmd.Process.Pid).Info("gNB started")
	return nil
}

// StartUE launches UE index idx (0, 1, or 2) on port portBase+idx with
// IMSI imsiBase+offset, mirroring startUE/startUE2/startUE3.
func (m *Manager) StartUE(idx int) error {
	if idx < 0 || idx > 2 {
		return fmt.Errorf("procs: UE index %d out of range", idx)
	}
	out, err := m.logFile(fmt.Sprintf("ue%d.log", idx+1))
	if err != nil {
		return err
	}
	cfg := filepath.Join(m.paths.UERANSIMPath, "config", "open5gs-ue.yaml")
	imsi := fmt.Sprintf("imsi-%d", m.imsiBase+m.imsiOffset)
	port := m.portBase + idx
	cmd := exec.Command("nr-ue", "-c", cfg, "-i", imsi, "-p", fmt.Sprintf("%d", port))
	cmd.Stdout, cmd.Stderr = out, out
	cmd.SysProcAttr = processGroupAttr()
	if err := cmd.Start(); err != nil {
		out.Close()
		return fmt.Errorf("procs: starting UE%d: %w", idx+1, err)
	}
	m.ues[idx] = cmd.Process
	m.log.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "imsi": imsi, "port": port}).Info("UE started")
	return nil
}

// terminate sends SIGINT and waits up to graceTimeout for exit, falling
// back to SIGKILL — UE_Terminate's try/except TimeoutExpired logic.
func terminate(log *logrus.Entry, p *os.Process, graceTimeout time.Duration) {
	if p == nil {
		return
	}
	if err := unix.Kill(p.Pid, unix.SIGINT); err != nil {
		return
	}
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(graceTimeout):
		log.WithField("pid", p.Pid).Warn("process did not terminate gracefully, killing")
		unix.Kill(p.Pid, unix.SIGKILL)
		p.Wait()
	}
}

// StopUEs gracefully terminates all three UE processes (killUE).
func (m *Manager) StopUEs() {
	for i, p := range m.ues {
		terminate(m.log, p, 2*time.Second)
		m.ues[i] = nil
	}
}

// StopGNB gracefully terminates the gNB process (killGNB).
func (m *Manager) StopGNB() {
	terminate(m.log, m.gnb, 2*time.Second)
	m.gnb = nil
}

// StopCore gracefully terminates the core process (killCore).
func (m *Manager) StopCore() {
	terminate(m.log, m.core, 2*time.Second)
	m.core = nil
}

// StopAll tears down UEs, then gNB, then core — the reverse of the
// start order, matching run_parallel.py's reset sequence.
func (m *Manager) StopAll() {
	m.StopUEs()
	m.StopGNB()
	m.StopCore()
}

// StartAll launches core, gNB, and ueCount UEs in the startup order,
// aggregating any failures rather than aborting on the first one so the
// caller can see every component that failed to launch.
func (m *Manager) StartAll(ueCount int) error {
	var merr *multierror.Error
	if err := m.StartCore(); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := m.StartGNB(); err != nil {
		merr = multierror.Append(merr, err)
	}
	for i := 0; i < ueCount; i++ {
		if err := m.StartUE(i); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
