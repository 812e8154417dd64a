package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// childSpec identifies one child process slot. A slot survives restarts:
// when the process dies, a new one is started into the same slot.
type childSpec struct {
	PodID int
	Role  string // "fetcher" or "parser"
	Index int
}

func (s childSpec) String() string {
	return fmt.Sprintf("pod%d/%s_%d", s.PodID, s.Role, s.Index)
}

const (
	restartDelay = time.Second
	// a child that keeps dying this quickly, this many times in a row, has
	// lost something it cannot run without (typically its pod's KV); the
	// pod is taken offline instead of crash-looping
	crashLoopWindow = 10 * time.Second
	crashLoopLimit  = 5
)

// supervisor spawns child processes by re-execing this binary with a role
// subcommand, restarts the ones that die, and tears everything down on
// shutdown: SIGTERM, a bounded wait, then SIGKILL for survivors.
type supervisor struct {
	executable string
	configPath string
	log        zerolog.Logger

	mu       sync.Mutex
	procs    map[string]*os.Process
	deadPods map[int]bool
	stopping bool

	wg sync.WaitGroup
}

func newSupervisor(configPath string, log zerolog.Logger) (*supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &supervisor{
		executable: exe,
		configPath: configPath,
		log:        log,
		procs:      make(map[string]*os.Process),
		deadPods:   make(map[int]bool),
	}, nil
}

func (s *supervisor) markPodDead(podID int) {
	s.mu.Lock()
	s.deadPods[podID] = true
	s.mu.Unlock()
}

func (s *supervisor) podDead(podID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadPods[podID]
}

func (s *supervisor) setStopping() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

func (s *supervisor) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// start launches the supervision loop for one child slot.
func (s *supervisor) start(ctx context.Context, spec childSpec) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx, spec)
	}()
}

func (s *supervisor) supervise(ctx context.Context, spec childSpec) {
	rapidExits := 0
	for ctx.Err() == nil && !s.isStopping() && !s.podDead(spec.PodID) {
		cmd := s.buildCmd(spec)
		if err := cmd.Start(); err != nil {
			s.log.Error().Err(err).Stringer("child", spec).Msg("child start failed")
			sleepCtx(ctx, restartDelay)
			continue
		}
		s.track(spec, cmd.Process)
		s.log.Info().Stringer("child", spec).Int("pid", cmd.Process.Pid).Msg("child started")

		startedAt := time.Now()
		err := cmd.Wait()
		s.untrack(spec)
		if ctx.Err() != nil || s.isStopping() {
			return
		}

		if time.Since(startedAt) < crashLoopWindow {
			rapidExits++
		} else {
			rapidExits = 0
		}
		if rapidExits >= crashLoopLimit {
			s.log.Error().Stringer("child", spec).
				Msg("child is crash-looping, taking its pod offline")
			s.markPodDead(spec.PodID)
			return
		}

		// a restarted child gets a new pid; its CPU affinity is re-applied
		// by the child itself at startup
		s.log.Warn().Err(err).Stringer("child", spec).Msg("child exited, restarting")
		sleepCtx(ctx, restartDelay)
	}
}

func (s *supervisor) buildCmd(spec childSpec) *exec.Cmd {
	cmd := exec.Command(s.executable,
		spec.Role,
		"--config", s.configPath,
		"--pod", strconv.Itoa(spec.PodID),
		"--index", strconv.Itoa(spec.Index),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func (s *supervisor) track(spec childSpec, proc *os.Process) {
	s.mu.Lock()
	s.procs[spec.String()] = proc
	s.mu.Unlock()
}

func (s *supervisor) untrack(spec childSpec) {
	s.mu.Lock()
	delete(s.procs, spec.String())
	s.mu.Unlock()
}

func (s *supervisor) liveProcs() []*os.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	procs := make([]*os.Process, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	return procs
}

// shutdown signals every child with SIGTERM, waits up to joinTimeout for
// the supervision loops to observe the exits, then SIGKILLs survivors.
func (s *supervisor) shutdown(joinTimeout time.Duration) {
	s.setStopping()
	for _, proc := range s.liveProcs() {
		_ = proc.Signal(syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(joinTimeout):
	}

	for _, proc := range s.liveProcs() {
		s.log.Warn().Int("pid", proc.Pid).Msg("child did not exit in time, killing")
		_ = proc.Kill()
	}
	<-done
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
