package cmd

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corefuzz/corefuzz/internal/config"
	"github.com/corefuzz/corefuzz/internal/coord"
	"github.com/corefuzz/corefuzz/internal/corelog"
	"github.com/corefuzz/corefuzz/internal/corpus"
	"github.com/corefuzz/corefuzz/internal/driver"
	"github.com/corefuzz/corefuzz/internal/fsm"
	"github.com/corefuzz/corefuzz/internal/logscan"
	"github.com/corefuzz/corefuzz/internal/mcts"
	"github.com/corefuzz/corefuzz/internal/procs"
	"github.com/corefuzz/corefuzz/internal/ueclient"
)

// initState is the synthetic name both FSMs start at when no prior
// snapshot exists, matching the `H0, H1, ...` naming scheme
// NewStateCount mints for every state discovered after the first.
const initState = "H0"

var workerWID int

func addWorkerCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one fuzz worker: loads/creates FSM+MCTS state, drives UE sockets, runs fuzz rounds",
		RunE:  runWorker,
	}
	cmd.Flags().IntVar(&workerWID, "wid", 0, "Worker ID, offsets ports/IMSI and names the worker's state directory")
	parent.AddCommand(cmd)
}

// rngAdapter satisfies fsm.Rand/mcts.Rand/ueclient's Intn+Float64 source
// from a single seeded *rand.Rand, the pattern driver.rngIntn also uses.
type rngAdapter struct{ r *rand.Rand }

func (a rngAdapter) Intn(n int) int   { return a.r.Intn(n) }
func (a rngAdapter) Float64() float64 { return a.r.Float64() }

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := corelog.New(logOptions())
	entry := corelog.WithWorker(log, workerWID)

	wdir := filepath.Join(cfg.WorkDir, "worker_"+strconv.Itoa(workerWID))
	if err := os.MkdirAll(wdir, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerWID)))
	adapter := rngAdapter{rng}

	f, err := loadOrNewFSM(filepath.Join(wdir, "savedFSM.json"))
	if err != nil {
		return err
	}
	fSM, err := loadOrNewFSM(filepath.Join(wdir, "savedFSM_sm.json"))
	if err != nil {
		return err
	}

	amf, err := loadOrNewSchedule(filepath.Join(wdir, "savedMCTS_amf.json"), f.InitState, adapter)
	if err != nil {
		return err
	}
	smf, err := loadOrNewSchedule(filepath.Join(wdir, "savedMCTS_smf.json"), fSM.InitState, adapter)
	if err != nil {
		return err
	}
	amf.WarmExpandRoot(f)
	smf.WarmExpandRoot(fSM)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := corpus.NewMongoStore(ctx, cfg.MongoURI, cfg.DBName, workerWID)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())
	if err := store.EnsureIndexes(ctx); err != nil {
		entry.WithError(err).Warn("ensuring corpus indexes failed, continuing")
	}

	portBase := cfg.UEPortBase + workerWID*100
	imsiBase := cfg.IMSIBase + int64(workerWID*100)
	logDir := filepath.Join(wdir, "logs")

	pm := procs.New(procs.Paths{UERANSIMPath: cfg.UERANSIMPath, LogDir: logDir}, portBase, imsiBase, entry)
	if err := pm.StartUE(0); err != nil {
		return err
	}
	if err := pm.StartUE(1); err != nil {
		entry.WithError(err).Warn("UE2 (AMF probe) failed to start")
	}
	if err := pm.StartUE(2); err != nil {
		entry.WithError(err).Warn("UE3 (SMF probe) failed to start")
	}
	defer pm.StopUEs()

	client := ueclient.New("127.0.0.1", ueclient.Ports{Base: portBase}, cfg.GNBPortBase, 2*time.Second, 2*time.Second)

	gnbLogPath := filepath.Join(cfg.WorkDir, "master_logs", "gnb.log")
	coreLogPath := filepath.Join(cfg.WorkDir, "master_logs", "core.log")
	gnbScan := logscan.NewGNBScanner(gnbLogPath)

	crashDir := filepath.Join(wdir, "crashes")
	if err := os.MkdirAll(crashDir, 0o755); err != nil {
		return err
	}

	d := driver.New(workerWID, f, fSM, amf, smf, store, client, gnbScan, coreLogPath, crashDir, rng, entry)

	ctrl, err := coord.New(filepath.Join(cfg.WorkDir, "ctrl"))
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Warn("signal received, saving state and exiting")
		cancel()
	}()
	defer saveSnapshots(entry, wdir, f, fSM, amf, smf)

	if err := waitForEpoch(ctx, ctrl); err != nil {
		return err
	}
	if err := client.ConnectUE(); err != nil {
		return err
	}
	defer client.Close()

	lastEpoch, err := ctrl.Epoch()
	if err != nil {
		return err
	}

	round := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if ctrl.IsResetPending() {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		epoch, err := ctrl.Epoch()
		if err == nil && epoch != lastEpoch {
			lastEpoch = epoch
			entry.WithField("epoch", epoch).Info("epoch changed, rotating IMSI offset and reconnecting UE")
			client.Close()
			pm.StopUEs()
			pm.RotateOffset()
			if err := pm.StartUE(0); err != nil {
				entry.WithError(err).Warn("UE restart failed, will retry")
				time.Sleep(time.Second)
				continue
			}
			pm.StartUE(1)
			pm.StartUE(2)
			time.Sleep(2 * time.Second)
			if err := client.ConnectUE(); err != nil {
				entry.WithError(err).Warn("UE reconnect failed, will retry")
				time.Sleep(time.Second)
				continue
			}
		}

		outcome, err := d.RunRound(ctx)
		if err != nil {
			entry.WithError(err).Warn("round failed, requesting reset")
			ctrl.RequestReset(workerWID, time.Now().UnixMilli(), "round_error")
			time.Sleep(time.Second)
			continue
		}
		entry.WithFields(map[string]any{
			"round":     round,
			"target":    outcome.AMFTarget,
			"aligned":   outcome.AlignedOK,
			"new_state": outcome.IsNewState,
			"new_trans": outcome.IsNewTransition,
			"reward":    outcome.Reward,
		}).Debug("round complete")

		round++
		if round%20 == 0 {
			saveSnapshots(entry, wdir, f, fSM, amf, smf)
		}
	}
}

// waitForEpoch blocks until the master has advanced the epoch past 0,
// matching core_fuzzer.py's `while get_epoch() < 1: sleep(0.2)` spin-wait
// that keeps a worker from dialing before the core/gNB are up.
func waitForEpoch(ctx context.Context, ctrl *coord.Dir) error {
	for {
		epoch, err := ctrl.Epoch()
		if err == nil && epoch >= 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func loadOrNewFSM(path string) (*fsm.FSM, error) {
	fresh := func() *fsm.FSM {
		f := fsm.New(initState)
		// initState already holds H0, so minting continues at H1.
		f.NewStateCount = 1
		return f
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return fresh(), nil
	}
	loaded, err := fsm.Load(data)
	if err != nil {
		return nil, err
	}
	loaded.RefreshPaths()
	return loaded, nil
}

func loadOrNewSchedule(path string, root string, rng mcts.Rand) (*mcts.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mcts.NewSchedule(root, rng), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return mcts.NewSchedule(root, rng), nil
	}
	return mcts.Load(data, rng)
}

func saveSnapshots(log *logrus.Entry, wdir string, f, fSM *fsm.FSM, amf, smf *mcts.Schedule) {
	log.Debug("saving FSM/MCTS snapshots")
	writeSnapshot(filepath.Join(wdir, "savedFSM.json"), f.Save)
	writeSnapshot(filepath.Join(wdir, "savedFSM_sm.json"), fSM.Save)
	writeSnapshot(filepath.Join(wdir, "savedMCTS_amf.json"), amf.Save)
	writeSnapshot(filepath.Join(wdir, "savedMCTS_smf.json"), smf.Save)
}

func writeSnapshot(path string, save func() ([]byte, error)) {
	data, err := save()
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

