package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/pod-crawler/internal/config"
	"github.com/rohmanhakim/pod-crawler/internal/domainlock"
	"github.com/rohmanhakim/pod-crawler/internal/fetcher"
	"github.com/rohmanhakim/pod-crawler/internal/frontier"
	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/internal/parsequeue"
	"github.com/rohmanhakim/pod-crawler/internal/politeness"
	"github.com/rohmanhakim/pod-crawler/internal/robots"
	robotscache "github.com/rohmanhakim/pod-crawler/internal/robots/cache"
	"github.com/rohmanhakim/pod-crawler/internal/seenbloom"
	"github.com/rohmanhakim/pod-crawler/internal/storage"
	"github.com/rohmanhakim/pod-crawler/internal/telemetry"
	"github.com/rohmanhakim/pod-crawler/pkg/timeutil"
)

/*
PodRuntime wires one process's view of its pod: the KV clients (own pod plus
peers for cross-pod routing), the frontier, politeness, storage, queues, and
counters. Fetcher and parser processes build one of these at startup.
*/

type PodRuntime struct {
	Config   config.Config
	PodID    int
	Client   *redis.Client
	Peers    map[int]redis.Cmdable
	Registry *prometheus.Registry
	Counters *telemetry.Counters
	Frontier *frontier.Frontier
	Enforcer *politeness.Enforcer
	Queue    *parsequeue.Queue
	Sink     *storage.Sink
	Log      zerolog.Logger
}

// FrontierDir returns where a pod's frontier files live. Domains are
// disjoint across pods, so all pods can share one tree without collisions.
func FrontierDir(cfg config.Config) string {
	return filepath.Join(cfg.DataDirs()[0], "frontiers")
}

// NewPodRuntime opens the pod's KV clients and builds the component graph.
// An unreachable own-pod KV is fatal for the process.
func NewPodRuntime(ctx context.Context, cfg config.Config, podID int, log zerolog.Logger) (*PodRuntime, error) {
	workers := cfg.FetcherWorkers()
	if cfg.ParserWorkers() > workers {
		workers = cfg.ParserWorkers()
	}

	client, err := kv.Open(cfg.KVURL(podID), workers)
	if err != nil {
		return nil, fmt.Errorf("opening pod %d kv: %w", podID, err)
	}
	if pingErr := kv.Ping(ctx, client); pingErr != nil {
		return nil, fmt.Errorf("pod %d kv unreachable: %w", podID, pingErr)
	}

	peers := make(map[int]redis.Cmdable, cfg.PodCount())
	peers[podID] = client
	for _, pod := range cfg.PodConfigs() {
		if pod.PodID == podID {
			continue
		}
		peer, peerErr := kv.Open(pod.KVURL, workers)
		if peerErr != nil {
			return nil, fmt.Errorf("opening peer pod %d kv: %w", pod.PodID, peerErr)
		}
		peers[pod.PodID] = peer
	}

	registry := prometheus.NewRegistry()
	counters := telemetry.NewCounters(registry, client)

	userAgent := cfg.UserAgent()
	robot := robots.NewRobot(
		robots.NewFetcher(userAgent),
		robotscache.NewKVCache(client),
		cfg.RobotsCacheTTL(),
		log,
	)

	front := frontier.New(frontier.Params{
		Client:      client,
		Peers:       peers,
		Bloom:       seenbloom.New(client),
		WriterLock:  domainlock.NewWriterLock(client),
		ReadTable:   domainlock.NewReadTable(),
		FrontierDir: FrontierDir(cfg),
		PodID:       podID,
		PodCount:    cfg.PodCount(),
		MaxDepth:    cfg.MaxDepth(),
		Log:         log,
	})

	return &PodRuntime{
		Config:   cfg,
		PodID:    podID,
		Client:   client,
		Peers:    peers,
		Registry: registry,
		Counters: counters,
		Frontier: front,
		Enforcer: politeness.NewEnforcer(client, robot, userAgent, cfg.PolitenessDelay()),
		Queue:    parsequeue.NewQueue(client, cfg.ParseQueueSoftLimit(), cfg.ParseQueueHardLimit()),
		Sink:     storage.NewSink(cfg.DataDirs(), client, log),
		Log:      log,
	}, nil
}

// NewInitFrontier builds the minimal frontier view the orchestrator uses to
// seed one pod. Seeds shard locally, so no peer clients are needed.
func NewInitFrontier(cfg config.Config, podID int, client *redis.Client, log zerolog.Logger) *frontier.Frontier {
	return frontier.New(frontier.Params{
		Client:      client,
		Bloom:       seenbloom.New(client),
		WriterLock:  domainlock.NewWriterLock(client),
		ReadTable:   domainlock.NewReadTable(),
		FrontierDir: FrontierDir(cfg),
		PodID:       podID,
		PodCount:    cfg.PodCount(),
		MaxDepth:    cfg.MaxDepth(),
		Log:         log,
	})
}

// RunFetcher drives this process as a fetcher until ctx ends.
func (r *PodRuntime) RunFetcher(ctx context.Context) error {
	loop := &FetchLoop{
		Frontier: r.Frontier,
		Enforcer: r.Enforcer,
		Fetcher:  fetcher.NewFetcher(r.Config.UserAgent(), r.Config.FetcherWorkers()),
		Queue:    r.Queue,
		Sink:     r.Sink,
		Counters: r.Counters,
		Workers:  r.Config.FetcherWorkers(),
		Sleeper:  timeutil.NewRealSleeper(),
		Log:      r.Log,
	}
	return loop.Run(ctx)
}

// RunParser drives this process as a parser until ctx ends. The ingress
// drainer rides along in every parser process; pops are atomic, so
// duplicate drainers across processes are safe.
func (r *PodRuntime) RunParser(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loop := &ParseLoop{
			Queue:    r.Queue,
			Frontier: r.Frontier,
			Sink:     r.Sink,
			Counters: r.Counters,
			Workers:  r.Config.ParserWorkers(),
			Log:      r.Log,
		}
		return loop.Run(groupCtx)
	})
	group.Go(func() error {
		loop := &IngressLoop{
			Client:   r.Client,
			Frontier: r.Frontier,
			Counters: r.Counters,
			Sleeper:  timeutil.NewRealSleeper(),
			Log:      r.Log,
		}
		return loop.Run(groupCtx)
	})
	err := group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the KV clients.
func (r *PodRuntime) Close() {
	for _, peer := range r.Peers {
		if c, ok := peer.(*redis.Client); ok {
			c.Close()
		}
	}
}
