// Package master implements the top-level fuzzing-campaign loop (spec
// §4.8): full core/gNB resets, worker supervision, and the
// hour/slot-bounded round schedule. Grounded on
// _examples/original_source/run_parallel.py, with the idle/backfill
// goroutine-plus-idempotent-Shutdown shape generalized from the
// teacher's internal/vm/pool_linux.go Pool.
package master

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/corefuzz/corefuzz/internal/coord"
	"github.com/corefuzz/corefuzz/internal/procs"
)

// gnbHealthMessage is the log line run_parallel.py's health_check waits
// for after starting the gNB ("NG Setup procedure is successful").
const gnbHealthMessage = "NG Setup procedure is successful"

// Config mirrors the CLI/env knobs run_parallel.py reads from .env (spec
// §6), minus the ones procs.Paths/Manager already own.
type Config struct {
	Parallel     bool
	NWorkers     int
	RoundSec     time.Duration
	HoursTotal   int
	SlotsPerHour int
	LogRoot      string
	CoordDir     string
	WorkerArgv0  string // path to this binary, re-invoked as `worker --wid N`
	MongoURI     string
	DBName       string
	CapturePcap  bool
}

// Master owns one campaign's lifecycle: it is not safe for concurrent
// Run calls, but Shutdown may be called concurrently with Run to request
// early termination.
type Master struct {
	cfg        Config
	procs      *procs.Manager
	ctrl       *coord.Dir
	gnbLogPath string
	log        *logrus.Entry

	mu      sync.Mutex
	done    chan struct{}
	workers []*exec.Cmd
	pcap    *exec.Cmd
}

// New builds a Master. gnbLogPath feeds the post-reset health check.
func New(cfg Config, pm *procs.Manager, ctrl *coord.Dir, gnbLogPath string, log *logrus.Entry) *Master {
	return &Master{
		cfg:        cfg,
		procs:      pm,
		ctrl:       ctrl,
		gnbLogPath: gnbLogPath,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run executes the campaign: an initial full reset, then — if
// cfg.Parallel — HoursTotal*SlotsPerHour worker rounds, each followed by
// another full reset. Run blocks until the schedule completes, ctx is
// cancelled, or Shutdown is called.
func (m *Master) Run(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.LogRoot, 0o755); err != nil {
		return fmt.Errorf("master: creating log root: %w", err)
	}
	if err := m.ctrl.SetEpoch(0); err != nil {
		return fmt.Errorf("master: resetting epoch: %w", err)
	}
	if err := m.ctrl.ClearResetPending(); err != nil {
		return fmt.Errorf("master: clearing reset_pending: %w", err)
	}
	if err := m.ctrl.ClearRequests(); err != nil {
		return fmt.Errorf("master: clearing reset_requests: %w", err)
	}

	if _, err := m.doFullReset(ctx); err != nil {
		m.log.WithError(err).Warn("initial reset encountered a problem, continuing")
	}

	if m.cfg.CapturePcap {
		m.startPcap()
	}
	defer m.stopPcap()

	if !m.cfg.Parallel {
		return nil
	}

	for hour := 0; hour < m.cfg.HoursTotal; hour++ {
		for slot := 0; slot < m.cfg.SlotsPerHour; slot++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.done:
				return nil
			default:
			}

			tag := fmt.Sprintf("%02d_%d", hour, slot)
			if err := m.runSlot(ctx, tag); err != nil {
				m.log.WithError(err).WithField("slot", tag).Error("slot failed")
			}
		}
	}

	m.procs.StopGNB()
	m.procs.StopCore()
	return nil
}

// runSlot spawns NWorkers worker processes, watches for mid-slot reset
// requests, waits out RoundSec, then tears the workers down and performs
// another full reset — one iteration of run_parallel.py's inner loop.
func (m *Master) runSlot(ctx context.Context, tag string) error {
	stopWatch := make(chan struct{})
	go m.ctrl.WatchRequests(stopWatch, func() {
		if _, err := m.doFullReset(ctx); err != nil {
			m.log.WithError(err).Warn("mid-slot reset failed")
		}
	})
	defer close(stopWatch)

	cmds, err := m.spawnWorkers(tag)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.workers = cmds
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"slot": tag, "workers": len(cmds)}).Info("round started")

	select {
	case <-time.After(m.cfg.RoundSec):
	case <-ctx.Done():
	case <-m.done:
	}

	m.stopWorkers(cmds)
	m.collectOutputs(tag, cmds)

	m.mu.Lock()
	m.workers = nil
	m.mu.Unlock()

	if _, err := m.doFullReset(ctx); err != nil {
		return err
	}
	m.log.WithField("slot", tag).Info("round finished, data stored")
	return nil
}

// spawnWorkers launches NWorkers copies of this binary as
// `worker --wid <n>`, each with stdout/stderr redirected to its own
// per-worker log file, matching run_parallel.py's spawn_worker.
func (m *Master) spawnWorkers(tag string) ([]*exec.Cmd, error) {
	cmds := make([]*exec.Cmd, 0, m.cfg.NWorkers)
	var errs *multierror.Error
	for wid := 0; wid < m.cfg.NWorkers; wid++ {
		logDir := filepath.Join(m.cfg.LogRoot, fmt.Sprintf("worker_%d", wid), "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %d: creating log dir: %w", wid, err))
			continue
		}
		logFile, err := os.OpenFile(filepath.Join(logDir, "worker.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %d: opening log: %w", wid, err))
			continue
		}

		cmd := exec.Command(m.cfg.WorkerArgv0, "worker", "--wid", fmt.Sprintf("%d", wid))
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		cmd.Env = append(os.Environ(), fmt.Sprintf("COREFUZZER_WID=%d", wid))
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %d: starting: %w", wid, err))
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, errs.ErrorOrNil()
}

// stopWorkers sends SIGINT, waits up to 5s per worker, then escalates to
// SIGKILL for any stragglers, matching run_parallel.py's per-slot
// teardown.
func (m *Master) stopWorkers(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process != nil {
			cmd.Process.Signal(os.Interrupt)
		}
	}
	for _, cmd := range cmds {
		done := make(chan error, 1)
		go func(c *exec.Cmd) { done <- c.Wait() }(cmd)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			<-done
		}
	}
}

// collectOutputs copies each worker's saved-FSM/MCTS snapshots into a
// per-slot subdirectory and exports its corpus collection via
// mongoexport, matching run_parallel.py's collect_outputs. Errors are
// logged, not propagated: missing artifacts must not abort the campaign.
func (m *Master) collectOutputs(tag string, cmds []*exec.Cmd) {
	for wid := range cmds {
		wdir := filepath.Join(m.cfg.LogRoot, fmt.Sprintf("worker_%d", wid))
		outdir := filepath.Join(wdir, "logs", fmt.Sprintf("w%d_%s", wid, tag))
		if err := os.MkdirAll(outdir, 0o755); err != nil {
			m.log.WithError(err).Warn("collectOutputs: mkdir failed")
			continue
		}
		for _, name := range []string{"savedFSM.json", "savedFSM_sm.json", "savedMCTS_amf.json", "savedMCTS_smf.json"} {
			src := filepath.Join(wdir, name)
			data, err := os.ReadFile(src)
			if err != nil {
				continue
			}
			_ = os.WriteFile(filepath.Join(outdir, name), data, 0o644)
		}

		if m.cfg.MongoURI == "" {
			continue
		}
		exportCmd := exec.Command("mongoexport",
			"--uri", m.cfg.MongoURI,
			fmt.Sprintf("--db=%s", m.cfg.DBName),
			fmt.Sprintf("--collection=worker%d", wid),
			fmt.Sprintf("--out=%s", filepath.Join(outdir, "db.json")),
		)
		if err := exportCmd.Run(); err != nil {
			m.log.WithError(err).WithField("wid", wid).Warn("mongoexport failed")
		}
	}
}

// doFullReset implements run_parallel.py's do_full_reset: mark
// reset-pending so workers pause, tear down and restart the core and
// gNB, wait for the gNB health line, then advance the epoch and clear
// the pending markers.
func (m *Master) doFullReset(ctx context.Context) (int64, error) {
	m.log.Info("full reset: restarting core & gNB")
	if err := m.ctrl.MarkResetPending(); err != nil {
		return 0, err
	}
	time.Sleep(time.Second)

	m.procs.StopAll()
	time.Sleep(500 * time.Millisecond)

	if err := m.procs.StartCore(); err != nil {
		m.log.WithError(err).Warn("core start failed")
	}
	time.Sleep(10 * time.Second)

	if err := m.procs.StartGNB(); err != nil {
		m.log.WithError(err).Warn("gNB start failed")
	}
	time.Sleep(3 * time.Second)

	if !m.waitGNBHealthy(10 * time.Second) {
		m.log.Warn("gNB health check failed, continuing anyway")
	}

	epoch, err := m.ctrl.AdvanceEpoch()
	if err != nil {
		return 0, err
	}
	if err := m.ctrl.ClearResetPending(); err != nil {
		return epoch, err
	}
	if err := m.ctrl.ClearRequests(); err != nil {
		return epoch, err
	}
	m.log.WithField("epoch", epoch).Info("full reset done")
	return epoch, nil
}

// waitGNBHealthy polls the gNB log file for gnbHealthMessage, matching
// run_parallel.py's health_check.
func (m *Master) waitGNBHealthy(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(m.gnbLogPath)
		if err == nil && containsHealthLine(data) {
			return true
		}
		time.Sleep(time.Second)
	}
	return false
}

func containsHealthLine(data []byte) bool {
	return strings.Contains(string(data), gnbHealthMessage)
}

// startPcap launches a loopback tcpdump capture for the campaign's
// lifetime, matching run_parallel.py's start_pcap/stop_pcap.
func (m *Master) startPcap() {
	out := filepath.Join(m.cfg.LogRoot, "fuzz_res.pcapng")
	cmd := exec.Command("tcpdump", "-i", "lo", "-w", out)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		m.log.WithError(err).Warn("tcpdump start failed")
		return
	}
	m.mu.Lock()
	m.pcap = cmd
	m.mu.Unlock()
}

func (m *Master) stopPcap() {
	m.mu.Lock()
	cmd := m.pcap
	m.pcap = nil
	m.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	cmd.Process.Signal(os.Interrupt)
	cmd.Wait()
}

// Shutdown requests early termination of Run and tears down any running
// workers, the gNB, and the core. Idempotent: repeated calls after the
// first are no-ops, mirroring the teacher Pool's done-channel pattern.
func (m *Master) Shutdown() {
	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		return
	default:
		close(m.done)
	}
	workers := m.workers
	m.workers = nil
	m.mu.Unlock()

	m.log.Info("shutdown: stopping workers")
	m.stopWorkers(workers)
	m.stopPcap()
	m.procs.StopGNB()
	m.procs.StopCore()
	m.ctrl.ClearResetPending()
	m.ctrl.SetEpoch(0)
}
