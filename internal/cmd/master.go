package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corefuzz/corefuzz/internal/config"
	"github.com/corefuzz/corefuzz/internal/coord"
	"github.com/corefuzz/corefuzz/internal/corelog"
	"github.com/corefuzz/corefuzz/internal/master"
	"github.com/corefuzz/corefuzz/internal/procs"
)

var (
	masterCapturePcap bool
	masterWorkerArgv0 string
)

func addMasterCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Run the hour/slot campaign loop: resets the core/gNB, supervises workers, collects output",
		RunE:  runMaster,
	}
	cmd.Flags().BoolVar(&masterCapturePcap, "pcap", true, "Capture a loopback tcpdump for the campaign lifetime")
	cmd.Flags().StringVar(&masterWorkerArgv0, "worker-argv0", "", "Path to this binary, re-invoked for each worker (default: os.Executable())")
	parent.AddCommand(cmd)
}

func runMaster(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := corelog.New(logOptions())
	entry := log.WithField("role", "master")

	argv0 := masterWorkerArgv0
	if argv0 == "" {
		argv0, err = os.Executable()
		if err != nil {
			return err
		}
	}

	ctrlDir := filepath.Join(cfg.WorkDir, "ctrl")
	ctrl, err := coord.New(ctrlDir)
	if err != nil {
		return err
	}

	pm := procs.New(procs.Paths{
		Open5GSPath:  cfg.Open5GSPath,
		UERANSIMPath: cfg.UERANSIMPath,
		LogDir:       filepath.Join(cfg.WorkDir, "master_logs"),
	}, cfg.UEPortBase, cfg.IMSIBase, entry)

	mcfg := master.Config{
		Parallel:     cfg.Parallel != 0,
		NWorkers:     cfg.NWorkers,
		RoundSec:     time.Duration(cfg.RoundSec) * time.Second,
		HoursTotal:   cfg.HoursTotal,
		SlotsPerHour: cfg.SlotsPerHour,
		LogRoot:      cfg.WorkDir,
		CoordDir:     ctrlDir,
		WorkerArgv0:  argv0,
		MongoURI:     cfg.MongoURI,
		DBName:       cfg.DBName,
		CapturePcap:  masterCapturePcap,
	}
	gnbLogPath := filepath.Join(cfg.WorkDir, "master_logs", "gnb.log")
	m := master.New(mcfg, pm, ctrl, gnbLogPath, entry)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Warn("signal received, shutting down campaign")
		m.Shutdown()
		cancel()
	}()

	return m.Run(ctx)
}
