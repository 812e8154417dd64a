package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/pod-crawler/internal/affinity"
	"github.com/rohmanhakim/pod-crawler/internal/config"
	"github.com/rohmanhakim/pod-crawler/internal/logging"
	"github.com/rohmanhakim/pod-crawler/internal/pipeline"
	"github.com/rohmanhakim/pod-crawler/internal/telemetry"
)

// Hidden subcommands the orchestrator re-execs this binary with. Each child
// pins itself to its core before the worker pool starts, so a restarted
// child re-applies its own affinity.

var (
	workerPod   int
	workerIndex int
)

var fetcherCmd = &cobra.Command{
	Use:    "fetcher",
	Short:  "Run one fetcher process (spawned by the orchestrator).",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		runWorker("fetcher")
	},
}

var parserCmd = &cobra.Command{
	Use:    "parser",
	Short:  "Run one parser process (spawned by the orchestrator).",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		runWorker("parser")
	},
}

func runWorker(role string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	roleName := logging.FetcherRole(workerIndex)
	if role == "parser" {
		roleName = logging.ParserRole(workerIndex)
	}
	log := logging.NewProcessLogger(cfg.LogDir(), workerPod, roleName)

	pinWorkerCore(cfg, role, log)

	ctx, cancel := signalContext()
	defer cancel()

	runtime, err := pipeline.NewPodRuntime(ctx, cfg, workerPod, log)
	if err != nil {
		// an unreachable pod KV is fatal for this pod's processes
		log.Error().Err(err).Msg("pod runtime unavailable")
		os.Exit(1)
	}
	defer runtime.Close()

	go serveWorkerMetrics(ctx, runtime, role, log)

	if role == "parser" {
		err = runtime.RunParser(ctx)
	} else {
		err = runtime.RunFetcher(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("worker stopped with pod-fatal error")
		os.Exit(1)
	}
}

// processIndex flattens (role, index) into the pod's process layout:
// fetcher i is process i, parser j is process F+j.
func processIndex(cfg config.Config, role string) int {
	if role == "parser" {
		return cfg.FetchersPerPod() + workerIndex
	}
	return workerIndex
}

// pinWorkerCore applies the pod's core layout: pod k owns cores
// [k*(F+P), (k+1)*(F+P)); fetcher i takes core i, parser j takes core F+j.
func pinWorkerCore(cfg config.Config, role string, log zerolog.Logger) {
	if !cfg.EnableCPUAffinity() {
		return
	}
	core := affinity.CoreForProcess(workerPod, cfg.CoresPerPod(), processIndex(cfg, role))
	if err := affinity.PinToCore(core); err != nil {
		log.Warn().Err(err).Int("core", core).Msg("cpu pinning failed")
	}
}

// serveWorkerMetrics exposes this process's registry on a port derived from
// the base port and the process's core slot, so every process can be
// scraped individually.
func serveWorkerMetrics(ctx context.Context, runtime *pipeline.PodRuntime, role string, log zerolog.Logger) {
	cfg := runtime.Config
	port := cfg.PrometheusPort() + 1 + affinity.CoreForProcess(workerPod, cfg.CoresPerPod(), processIndex(cfg, role))
	if err := telemetry.Serve(ctx, port, runtime.Registry); err != nil {
		log.Warn().Err(err).Int("port", port).Msg("metrics endpoint failed")
	}
}

func init() {
	for _, c := range []*cobra.Command{fetcherCmd, parserCmd} {
		c.Flags().IntVar(&workerPod, "pod", 0, "pod id this process belongs to")
		c.Flags().IntVar(&workerIndex, "index", 0, "process index within the pod")
		rootCmd.AddCommand(c)
	}
}
