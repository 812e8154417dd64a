package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rohmanhakim/pod-crawler/internal/affinity"
	"github.com/rohmanhakim/pod-crawler/internal/config"
	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/internal/pipeline"
	"github.com/rohmanhakim/pod-crawler/internal/politeness"
	"github.com/rohmanhakim/pod-crawler/internal/telemetry"
)

/*
Orchestrator.

Owns the crawl lifecycle: startup hygiene (zombie locks, counter reset,
exclusions, sharded seeding), child process supervision with core pinning,
the aggregated metrics endpoint, and the stopping conditions. The
orchestrator itself acts as fetcher 0 of pod 0, pinned to pod 0's core 0.

A pod whose KV is unreachable is taken offline: its children are not
(re)started and the rest of the crawl continues.
*/

const (
	stopCheckInterval = 2 * time.Second
	joinTimeout       = 10 * time.Second
	// the crawl is considered drained after this many consecutive checks
	// find every live pod's queues empty
	drainChecks = 5
)

type Orchestrator struct {
	cfg        config.Config
	configPath string
	log        zerolog.Logger
	sup        *supervisor
	clients    map[int]*redis.Client
	started    time.Time
}

func New(cfg config.Config, configPath string, log zerolog.Logger) (*Orchestrator, error) {
	sup, err := newSupervisor(configPath, log)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:        cfg,
		configPath: configPath,
		log:        log,
		sup:        sup,
		clients:    make(map[int]*redis.Client),
	}, nil
}

// Run executes the whole crawl and blocks until a stopping condition fires
// or ctx is cancelled by signal.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.started = time.Now()
	if err := o.checkCoreFit(); err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	o.connectPods(runCtx)
	defer o.closePods()
	if len(o.livePods()) == 0 {
		return fmt.Errorf("no pod KV store is reachable")
	}

	if err := o.prepareState(runCtx); err != nil {
		return err
	}

	// pod 0's runtime doubles as the orchestrator's own fetcher half
	var runtime *pipeline.PodRuntime
	if !o.sup.podDead(0) {
		var err error
		runtime, err = pipeline.NewPodRuntime(runCtx, o.cfg, 0, o.log)
		if err != nil {
			o.log.Error().Err(err).Msg("pod 0 runtime unavailable, pod 0 taken offline")
			o.sup.markPodDead(0)
		} else {
			defer runtime.Close()
		}
	}

	go o.serveMetrics(runCtx, runtime)

	if o.cfg.EnableCPUAffinity() {
		core := affinity.CoreForProcess(0, o.cfg.CoresPerPod(), 0)
		if err := affinity.PinToCore(core); err != nil {
			o.log.Warn().Err(err).Int("core", core).Msg("cpu pinning failed")
		}
	}

	o.spawnChildren(runCtx)

	go o.watchStopConditions(runCtx, stop)

	if runtime != nil {
		if err := runtime.RunFetcher(runCtx); err != nil {
			o.log.Error().Err(err).Msg("pod 0 fetcher stopped with pod-fatal error")
			o.sup.markPodDead(0)
			<-runCtx.Done()
		}
	} else {
		<-runCtx.Done()
	}

	o.log.Info().Msg("shutting down children")
	o.sup.shutdown(joinTimeout)
	o.logSummary()
	return nil
}

func (o *Orchestrator) checkCoreFit() error {
	needed := o.cfg.PodCount() * o.cfg.CoresPerPod()
	available := affinity.LogicalCores()
	if o.cfg.EnableCPUAffinity() && available > 0 && needed > available {
		return fmt.Errorf("topology needs %d cores but host has %d", needed, available)
	}
	return nil
}

func (o *Orchestrator) connectPods(ctx context.Context) {
	for _, pod := range o.cfg.PodConfigs() {
		client, err := kv.Open(pod.KVURL, o.cfg.FetcherWorkers())
		if err == nil {
			err = kv.Ping(ctx, client)
		}
		if err != nil {
			o.log.Error().Err(err).Int("pod", pod.PodID).Msg("pod KV unavailable, pod taken offline")
			o.sup.markPodDead(pod.PodID)
			continue
		}
		o.clients[pod.PodID] = client
	}
}

func (o *Orchestrator) closePods() {
	for _, client := range o.clients {
		client.Close()
	}
}

func (o *Orchestrator) livePods() []int {
	pods := make([]int, 0, len(o.clients))
	for podID := range o.clients {
		if !o.sup.podDead(podID) {
			pods = append(pods, podID)
		}
	}
	return pods
}

// prepareState runs the startup hygiene pass on every live pod: clear
// zombie write-locks, reset the counter mirror on a fresh start, load the
// exclusion list, and perform the sharded seed initialization.
func (o *Orchestrator) prepareState(ctx context.Context) error {
	var exclusions []string
	if path := o.cfg.ExcludeFile(); path != "" {
		lines, err := LoadLines(path)
		if err != nil {
			// exclusion list failures are fatal at startup only
			return fmt.Errorf("reading exclusion file: %w", err)
		}
		exclusions = lines
	}

	var seeds []string
	if path := o.cfg.SeedFile(); path != "" {
		lines, err := LoadLines(path)
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		seeds = lines
	}

	for podID, client := range o.clients {
		cleared, err := kv.ClearZombieLocks(ctx, client)
		if err != nil {
			o.log.Error().Err(err).Int("pod", podID).Msg("zombie lock sweep failed, pod taken offline")
			o.sup.markPodDead(podID)
			continue
		}
		if cleared > 0 {
			o.log.Warn().Int("pod", podID).Int("locks", cleared).Msg("cleared zombie write-locks")
		}

		if !o.cfg.Resume() {
			if err := telemetry.ResetStats(ctx, client); err != nil {
				o.log.Warn().Err(err).Int("pod", podID).Msg("stats reset failed")
			}
		}

		// exclusion is global, so every pod gets the full list
		if err := politeness.Exclude(ctx, client, exclusions); err != nil {
			o.log.Error().Err(err).Int("pod", podID).Msg("exclusion load failed, pod taken offline")
			o.sup.markPodDead(podID)
			continue
		}

		if err := o.initializePod(ctx, podID, client, seeds); err != nil {
			o.log.Error().Err(err).Int("pod", podID).Msg("frontier initialization failed, pod taken offline")
			o.sup.markPodDead(podID)
		}
	}
	return nil
}

func (o *Orchestrator) initializePod(ctx context.Context, podID int, client *redis.Client, seeds []string) error {
	front := pipeline.NewInitFrontier(o.cfg, podID, client, o.log)
	return front.Initialize(ctx, seeds, o.cfg.BloomCapacity(), o.cfg.BloomErrorRate(), o.cfg.Resume())
}

// spawnChildren starts every child slot. The orchestrator itself fills pod
// 0's fetcher 0 slot, so that one is skipped.
func (o *Orchestrator) spawnChildren(ctx context.Context) {
	for _, podID := range o.livePods() {
		for i := 0; i < o.cfg.FetchersPerPod(); i++ {
			if podID == 0 && i == 0 {
				continue
			}
			o.sup.start(ctx, childSpec{PodID: podID, Role: "fetcher", Index: i})
		}
		for j := 0; j < o.cfg.ParsersPerPod(); j++ {
			o.sup.start(ctx, childSpec{PodID: podID, Role: "parser", Index: j})
		}
	}
}

func (o *Orchestrator) serveMetrics(ctx context.Context, runtime *pipeline.PodRuntime) {
	readers := make(map[int]telemetry.StatsReader, len(o.clients))
	for podID, client := range o.clients {
		readers[podID] = client
	}

	registry := pickRegistry(runtime)
	registry.MustRegister(telemetry.NewAggregatedCollector(readers))
	if err := telemetry.Serve(ctx, o.cfg.PrometheusPort(), registry); err != nil {
		o.log.Error().Err(err).Int("port", o.cfg.PrometheusPort()).Msg("metrics endpoint failed")
	}
}

// watchStopConditions cancels the run when any stopping condition holds:
// the page budget is spent, the wall-clock budget is spent, or every live
// pod's queues stay empty for a sustained drain window.
func (o *Orchestrator) watchStopConditions(ctx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(stopCheckInterval)
	defer ticker.Stop()

	emptyChecks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if max := o.cfg.MaxPages(); max > 0 {
			stats := telemetry.ReadStats(ctx, o.statsReaders())
			if stats.PagesCrawled >= int64(max) {
				o.log.Info().Int64("pages", stats.PagesCrawled).Msg("max pages reached, stopping")
				stop()
				return
			}
		}

		if max := o.cfg.MaxDuration(); max > 0 && time.Since(o.started) >= max {
			o.log.Info().Dur("elapsed", time.Since(o.started)).Msg("max duration reached, stopping")
			stop()
			return
		}

		if o.allQueuesEmpty(ctx) {
			emptyChecks++
			if emptyChecks >= drainChecks {
				o.log.Info().Msg("all pods drained, stopping")
				stop()
				return
			}
		} else {
			emptyChecks = 0
		}
	}
}

func (o *Orchestrator) statsReaders() map[int]telemetry.StatsReader {
	readers := make(map[int]telemetry.StatsReader, len(o.clients))
	for podID, client := range o.clients {
		readers[podID] = client
	}
	return readers
}

func (o *Orchestrator) allQueuesEmpty(ctx context.Context) bool {
	live := o.livePods()
	if len(live) == 0 {
		return true
	}
	for _, podID := range live {
		client := o.clients[podID]
		domains, err := client.LLen(ctx, kv.DomainsQueueKey).Result()
		if err != nil || domains > 0 {
			return false
		}
		fetches, err := client.LLen(ctx, kv.FetchQueueKey).Result()
		if err != nil || fetches > 0 {
			return false
		}
		ingress, err := client.LLen(ctx, kv.IngressKey).Result()
		if err != nil || ingress > 0 {
			return false
		}
	}
	return true
}

func pickRegistry(runtime *pipeline.PodRuntime) *prometheus.Registry {
	if runtime != nil {
		return runtime.Registry
	}
	return prometheus.NewRegistry()
}

func (o *Orchestrator) logSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats := telemetry.ReadStats(ctx, o.statsReaders())
	o.log.Info().
		Int64("pages_crawled", stats.PagesCrawled).
		Int64("urls_added", stats.URLsAdded).
		Int64("fetch_errors", stats.FetchErrors).
		Int64("parse_errors", stats.ParseErrors).
		Dur("duration", time.Since(o.started)).
		Msg("crawl finished")
}
