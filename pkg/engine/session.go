package engine

import (
	"sync"
	"time"

	"github.com/XiaoConstantine/ale-go/pkg/config"
	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/explorer"
	"github.com/XiaoConstantine/ale-go/pkg/insights"
	"github.com/XiaoConstantine/ale-go/pkg/scoring"
)

// Session is the externally visible state of one optimization run. Mutated
// only by the engine's control loop; callers receive snapshots.
type Session struct {
	ID            string                    `json:"id"`
	Status        core.SessionStatus        `json:"status"`
	Config        config.OptimizationConfig `json:"config"`
	Progress      core.Progress             `json:"progress"`
	CurrentTrial  *core.Trial               `json:"current_trial,omitempty"`
	BestSolution  *core.Solution            `json:"best_solution,omitempty"`
	BestScore     *core.SolutionScore       `json:"best_score,omitempty"`
	Trials        []core.Trial              `json:"trials"`
	Insights      []core.Insight            `json:"insights"`
	StoppedReason core.StopReason           `json:"stopped_reason,omitempty"`
	Error         string                    `json:"error,omitempty"`
	StartedAt     time.Time                 `json:"started_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	CompletedAt   time.Time                 `json:"completed_at,omitempty"`
}

// session is the engine-internal run state. Each session owns its own
// explorer, insight generator and scorer so that no exploration state leaks
// across concurrent sessions.
type session struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state Session

	explorer  *explorer.Explorer
	reflector *insights.Generator
	vps       *scoring.VirtualPowerScorer

	// Cached avoid-list for the session's task, refreshed at start and
	// extended as new failures are extracted.
	failedStrategies []core.FailedStrategy

	pauseRequested bool
	stopRequested  bool

	done chan struct{}
}

func newSession(id string, cfg config.OptimizationConfig) *session {
	s := &session{
		state: Session{
			ID:        id,
			Status:    core.StatusIdle,
			Config:    cfg,
			Trials:    make([]core.Trial, 0, cfg.MaxTrials),
			Insights:  make([]core.Insight, 0),
			StartedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		explorer: explorer.New(explorer.WithConfig(explorer.Config{
			InitialTemperature: cfg.InitialTemperature,
			CoolingRate:        cfg.CoolingRate,
			MinTemperature:     cfg.MinTemperature,
			ReheatingThreshold: cfg.ReheatingThreshold,
			ReheatingFactor:    cfg.ReheatingFactor,
			GreedyWarmup:       3,
			ReconstructionProb: 0.1,
			RefinementProb:     0.15,
			BeamWidth:          cfg.BeamWidth,
			PopulationSize:     cfg.PopulationSize,
			TournamentSize:     3,
			MutationRate:       0.3,
			MaxGoroutines:      4,
		})),
		reflector: insights.New(),
		vps:       scoring.NewVirtualPowerScorer(),
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// snapshot copies the session state for external consumption.
func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Trials = append([]core.Trial(nil), s.state.Trials...)
	out.Insights = append([]core.Insight(nil), s.state.Insights...)
	if s.state.CurrentTrial != nil {
		t := *s.state.CurrentTrial
		out.CurrentTrial = &t
	}
	if s.state.BestSolution != nil {
		b := *s.state.BestSolution
		out.BestSolution = &b
	}
	if s.state.BestScore != nil {
		b := *s.state.BestScore
		out.BestScore = &b
	}
	return out
}

func (s *session) setStatus(status core.SessionStatus) {
	s.mu.Lock()
	s.state.Status = status
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// checkpoint blocks while paused and reports whether a stop was requested.
// Called between iterations; already-recorded trial and insight state is
// never touched here.
func (s *session) checkpoint() (stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pauseRequested && !s.stopRequested {
		s.state.Status = core.StatusPaused
		s.state.UpdatedAt = time.Now()
		s.cond.Wait()
	}
	if s.stopRequested {
		return true
	}
	if s.state.Status != core.StatusRunning {
		s.state.Status = core.StatusRunning
		s.state.UpdatedAt = time.Now()
	}
	return false
}

// requestPause flags the session; the loop honors it at the next boundary.
func (s *session) requestPause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != core.StatusRunning && s.state.Status != core.StatusPaused {
		return false
	}
	s.pauseRequested = true
	return true
}

func (s *session) requestResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pauseRequested {
		return false
	}
	s.pauseRequested = false
	s.cond.Broadcast()
	return true
}

func (s *session) requestStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case core.StatusRunning, core.StatusPaused, core.StatusIdle:
		s.stopRequested = true
		s.cond.Broadcast()
		return true
	default:
		return false
	}
}

// Handle tracks an asynchronously started session.
type Handle struct {
	SessionID string
	done      chan struct{}
	result    *Session
}

// Done is closed when the session's loop exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session finishes and returns its terminal snapshot.
func (h *Handle) Wait() Session {
	<-h.done
	return *h.result
}
