package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ale-go/pkg/config"
	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/errors"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
	"github.com/XiaoConstantine/ale-go/pkg/memory"
	"github.com/XiaoConstantine/ale-go/pkg/scoring"
)

// Engine owns optimization sessions and drives each one's trial loop.
// Sessions run independently; the only state shared between them is the
// working memory, which serializes its own mutation.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*session

	generate  core.GenerateFunc
	score     core.ScoreFunc
	memory    *memory.WorkingMemory
	callbacks core.Callbacks
	logger    *logging.Logger
}

// Option defines functional options for Engine construction.
type Option func(*Engine)

// WithGenerator injects the solution generator collaborator.
func WithGenerator(g core.GenerateFunc) Option {
	return func(e *Engine) {
		e.generate = g
	}
}

// WithScorer injects the solution scorer collaborator.
func WithScorer(s core.ScoreFunc) Option {
	return func(e *Engine) {
		e.score = s
	}
}

// WithWorkingMemory attaches a (possibly process-wide) working memory.
func WithWorkingMemory(m *memory.WorkingMemory) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithCallbacks registers fire-and-forget session notifications.
func WithCallbacks(cb core.Callbacks) Option {
	return func(e *Engine) {
		e.callbacks = cb
	}
}

// New creates an Engine. Without injected collaborators the loop falls back
// to built-in empty stand-ins so sessions always run to a defined end.
func New(opts ...Option) *Engine {
	e := &Engine{
		sessions: make(map[string]*session),
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generate == nil {
		e.generate = emptyGenerator
	}
	if e.score == nil {
		e.score = emptyScorer
	}
	return e
}

// emptyGenerator is the stand-in used when no generator was injected.
func emptyGenerator(_ context.Context, gc core.GeneratorContext) (core.Solution, error) {
	return core.Solution{
		ID:        uuid.New().String(),
		Content:   "",
		CreatedAt: time.Now(),
		Iteration: gc.Iteration,
	}, nil
}

// emptyScorer is the stand-in used when no scorer was injected.
func emptyScorer(_ context.Context, _ core.Solution, _ core.ScorerContext) (core.SolutionScore, error) {
	return core.SolutionScore{
		Reasoning: "no scorer configured",
	}, nil
}

// Optimize runs a session to completion synchronously. A collaborator
// failure is terminal for the session, not for the engine: the returned
// snapshot carries status failed, the error string and the partial history.
// The error return covers configuration problems only.
func (e *Engine) Optimize(ctx context.Context, cfg config.OptimizationConfig) (Session, error) {
	s, err := e.createSession(cfg)
	if err != nil {
		return Session{}, err
	}
	e.run(ctx, s)
	return s.snapshot(), nil
}

// Start launches a session on its own goroutine and returns immediately.
func (e *Engine) Start(ctx context.Context, cfg config.OptimizationConfig) (*Handle, error) {
	s, err := e.createSession(cfg)
	if err != nil {
		return nil, err
	}

	h := &Handle{SessionID: s.state.ID, done: s.done, result: &Session{}}
	go func() {
		e.run(ctx, s)
		*h.result = s.snapshot()
		close(s.done)
	}()
	return h, nil
}

func (e *Engine) createSession(cfg config.OptimizationConfig) (*session, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newSession(uuid.New().String(), cfg)

	e.mu.Lock()
	e.sessions[s.state.ID] = s
	e.mu.Unlock()
	return s, nil
}

// run drives the per-iteration control loop for one session.
func (e *Engine) run(ctx context.Context, s *session) {
	cfg := s.state.Config
	ctx = logging.WithSessionID(ctx, s.state.ID)
	ctx = logging.WithStrategy(ctx, string(cfg.Strategy))

	s.setStatus(core.StatusRunning)
	e.logger.Info(ctx, "starting optimization: task=%q strategy=%s max_trials=%d target=%.2f",
		cfg.Task, cfg.Strategy, cfg.MaxTrials, cfg.TargetScore)

	// Seed the avoid-list once per session; extended as failures surface.
	if cfg.UseWorkingMemory && e.memory != nil {
		s.failedStrategies = e.memory.RecallFailedStrategies(ctx, cfg.Task)
	}

	start := time.Now()

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			e.finish(ctx, s, core.StopRequested)
			return
		}
		if s.checkpoint() {
			e.finish(ctx, s, core.StopRequested)
			return
		}

		trial, err := e.runIteration(ctx, s, iteration)
		if err != nil {
			if errors.Code(err) == errors.Canceled {
				e.finish(ctx, s, core.StopRequested)
				return
			}
			e.fail(ctx, s, err)
			return
		}

		e.reflect(ctx, s, trial)
		e.updateBest(s, trial)
		e.reportProgress(s, iteration, start)

		if reason, done := e.shouldStop(s, start); done {
			e.finish(ctx, s, reason)
			return
		}
	}
}

// runIteration executes one explore step and records the resulting trial.
func (e *Engine) runIteration(ctx context.Context, s *session, iteration int) (core.Trial, error) {
	cfg := s.state.Config

	s.mu.Lock()
	gc := core.GeneratorContext{
		Task:             cfg.Task,
		Objective:        cfg.Objective,
		Constraints:      cfg.Constraints,
		Insights:         append([]core.Insight(nil), s.state.Insights...),
		FailedStrategies: append([]core.FailedStrategy(nil), s.failedStrategies...),
		Iteration:        iteration,
	}
	for _, t := range s.state.Trials {
		gc.PriorSolutions = append(gc.PriorSolutions, t.Solution)
	}
	s.mu.Unlock()

	trialStart := time.Now()
	sol, sc, err := s.explorer.Explore(ctx, cfg.Strategy, gc, e.generate, e.blendedScorer(s))
	if err != nil {
		return core.Trial{}, err
	}

	trial := core.Trial{
		ID:        uuid.New().String(),
		Iteration: iteration,
		Solution:  sol,
		Score:     sc,
		Duration:  time.Since(trialStart),
		ToolsUsed: cfg.Tools,
		StartedAt: trialStart,
		EndedAt:   time.Now(),
	}

	s.mu.Lock()
	s.state.Trials = append(s.state.Trials, trial)
	s.state.CurrentTrial = &trial
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.notifyTrial(trial)
	return trial, nil
}

// blendedScorer wraps the injected scorer: the caller supplies the
// immediate score and breakdown, the engine fills in the virtual-power term
// and the configured blend.
func (e *Engine) blendedScorer(s *session) core.ScoreFunc {
	cfg := s.state.Config
	return func(ctx context.Context, sol core.Solution, sc core.ScorerContext) (core.SolutionScore, error) {
		s.mu.Lock()
		trials := append([]core.Trial(nil), s.state.Trials...)
		sessionInsights := append([]core.Insight(nil), s.state.Insights...)
		avoided := len(s.failedStrategies)
		failed := append([]core.FailedStrategy(nil), s.failedStrategies...)
		s.mu.Unlock()

		sc.PriorTrials = trials
		score, err := e.score(ctx, sol, sc)
		if err != nil {
			return core.SolutionScore{}, err
		}

		score.VirtualPower = s.vps.Score(sol, scoringContext(cfg, trials, sessionInsights, failed, avoided))

		// A scorer that supplies its own total opts out of the blend;
		// otherwise the configured convex combination applies.
		if score.Total == 0 {
			w := cfg.VirtualPowerWeight
			score.Total = (1-w)*score.Immediate + w*score.VirtualPower
		}
		return score, nil
	}
}

// reflect runs the insight generator over the new trial, persists what is
// worth keeping and extends the session avoid-list.
func (e *Engine) reflect(ctx context.Context, s *session, trial core.Trial) {
	cfg := s.state.Config

	s.mu.Lock()
	history := append([]core.Trial(nil), s.state.Trials...)
	prior := append([]core.Insight(nil), s.state.Insights...)
	s.mu.Unlock()

	produced := s.reflector.Reflect(trial, history, prior)
	if len(produced) == 0 {
		return
	}

	s.mu.Lock()
	s.state.Insights = append(s.state.Insights, produced...)
	s.mu.Unlock()

	for _, in := range produced {
		e.notifyInsight(in)
	}

	extracted := s.reflector.ExtractFailedStrategies(produced, cfg.Task)
	if len(extracted) > 0 {
		s.mu.Lock()
		s.failedStrategies = append(s.failedStrategies, extracted...)
		s.mu.Unlock()
	}

	if cfg.UseWorkingMemory && e.memory != nil {
		for _, fs := range extracted {
			if err := e.memory.StoreFailedStrategy(ctx, fs); err != nil {
				e.logger.Debug(ctx, "failed to store failed strategy: %v", err)
			}
		}
		if cfg.StoreInsights {
			for _, in := range produced {
				if in.Confidence >= 0.7 {
					if err := e.memory.StoreInsight(ctx, in, cfg.Task); err != nil {
						e.logger.Debug(ctx, "failed to store insight: %v", err)
					}
				}
			}
		}
	}

	// Adapt factor weights as evidence accumulates; no-op early on.
	s.vps.UpdateWeights(history)
}

func (e *Engine) updateBest(s *session, trial core.Trial) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.BestScore == nil || trial.Score.Total > s.state.BestScore.Total {
		sol := trial.Solution
		sc := trial.Score
		s.state.BestSolution = &sol
		s.state.BestScore = &sc
	}
}

func (e *Engine) reportProgress(s *session, iteration int, start time.Time) {
	stats := s.explorer.GetStats()

	s.mu.Lock()
	best := 0.0
	if s.state.BestScore != nil {
		best = s.state.BestScore.Total
	}
	progress := core.Progress{
		SessionID:       s.state.ID,
		Iteration:       iteration,
		TrialsRun:       len(s.state.Trials),
		BestScore:       best,
		Elapsed:         time.Since(start),
		StuckCount:      stats.StuckCount,
		InsightCount:    len(s.state.Insights),
		CurrentStrategy: string(s.state.Config.Strategy),
	}
	s.state.Progress = progress
	s.mu.Unlock()

	e.notifyProgress(progress)
}

// shouldStop evaluates every termination condition at the iteration
// boundary.
func (e *Engine) shouldStop(s *session, start time.Time) (core.StopReason, bool) {
	cfg := s.state.Config

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.BestScore != nil && s.state.BestScore.Total >= cfg.TargetScore {
		return core.StopTargetReached, true
	}
	if len(s.state.Trials) >= cfg.MaxTrials {
		return core.StopMaxTrials, true
	}
	if time.Since(start) >= cfg.MaxDuration {
		return core.StopTimeout, true
	}
	if converged(s.state.Trials, cfg.ConvergenceWindow, cfg.ConvergenceThreshold) {
		return core.StopConverged, true
	}
	return "", false
}

// converged reports whether the trailing window shows near-zero variance
// with no improvement.
func converged(trials []core.Trial, window int, threshold float64) bool {
	if window < 2 || len(trials) < window {
		return false
	}
	tail := trials[len(trials)-window:]

	mean := 0.0
	for _, t := range tail {
		mean += t.Score.Total
	}
	mean /= float64(window)

	variance := 0.0
	improved := false
	best := tail[0].Score.Total
	for i, t := range tail {
		d := t.Score.Total - mean
		variance += d * d
		if i > 0 && t.Score.Total > best {
			improved = true
		}
		best = math.Max(best, t.Score.Total)
	}
	variance /= float64(window)

	return variance < threshold && !improved
}

func (e *Engine) finish(ctx context.Context, s *session, reason core.StopReason) {
	s.mu.Lock()
	if reason == core.StopRequested {
		s.state.Status = core.StatusStopped
	} else {
		s.state.Status = core.StatusCompleted
	}
	s.state.StoppedReason = reason
	s.state.CompletedAt = time.Now()
	s.state.UpdatedAt = s.state.CompletedAt
	trials := append([]core.Trial(nil), s.state.Trials...)
	sessionInsights := append([]core.Insight(nil), s.state.Insights...)
	cfg := s.state.Config
	s.mu.Unlock()

	if cfg.UseWorkingMemory && e.memory != nil {
		counts := e.memory.LearnFromTrials(ctx, cfg.Task, trials, sessionInsights)
		e.logger.Debug(ctx, "working memory learned: %d failed strategies, %d success patterns, %d insights",
			counts.FailedStrategies, counts.SuccessPatterns, counts.Insights)
	}

	e.logger.Info(ctx, "session finished: status=%s reason=%s trials=%d", s.state.Status, reason, len(trials))
}

func (e *Engine) fail(ctx context.Context, s *session, err error) {
	s.mu.Lock()
	s.state.Status = core.StatusFailed
	s.state.Error = err.Error()
	s.state.CompletedAt = time.Now()
	s.state.UpdatedAt = s.state.CompletedAt
	s.mu.Unlock()

	e.logger.Error(ctx, "session failed: %v", err)
}

// Fire-and-forget callback dispatch; the loop never waits on these.

func (e *Engine) notifyTrial(t core.Trial) {
	if e.callbacks.OnTrialComplete != nil {
		go e.callbacks.OnTrialComplete(t)
	}
}

func (e *Engine) notifyInsight(in core.Insight) {
	if e.callbacks.OnInsightGenerated != nil {
		go e.callbacks.OnInsightGenerated(in)
	}
}

func (e *Engine) notifyProgress(p core.Progress) {
	if e.callbacks.OnProgressUpdate != nil {
		go e.callbacks.OnProgressUpdate(p)
	}
}

// GetSession returns a snapshot of the identified session.
func (e *Engine) GetSession(id string) (Session, bool) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// ListSessions returns snapshots of all sessions, optionally filtered by
// status.
func (e *Engine) ListSessions(statuses ...core.SessionStatus) []Session {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		snap := s.snapshot()
		if len(statuses) > 0 && !containsStatus(statuses, snap.Status) {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// GetRunning returns snapshots of sessions currently running or paused.
func (e *Engine) GetRunning() []Session {
	return e.ListSessions(core.StatusRunning, core.StatusPaused)
}

// Pause flags a running session to suspend at the next iteration boundary.
// Already-recorded trials and insights are preserved.
func (e *Engine) Pause(id string) bool {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return s.requestPause()
}

// Resume releases a paused session back into its loop.
func (e *Engine) Resume(id string) bool {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return s.requestResume()
}

// Stop forces termination at the next checkpoint with stoppedReason
// "stopped".
func (e *Engine) Stop(id string) bool {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return s.requestStop()
}

// Cleanup purges terminal sessions older than maxAge and returns how many
// were removed.
func (e *Engine) Cleanup(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, s := range e.sessions {
		snap := s.snapshot()
		switch snap.Status {
		case core.StatusCompleted, core.StatusFailed, core.StatusStopped:
			if snap.UpdatedAt.Before(cutoff) {
				delete(e.sessions, id)
				removed++
			}
		}
	}
	return removed
}

// GetFailedStrategies returns the session's cached avoid-list.
func (e *Engine) GetFailedStrategies(id string) []core.FailedStrategy {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FailedStrategy(nil), s.failedStrategies...)
}

// ClearFailedStrategies drops the session's cached avoid-list.
func (e *Engine) ClearFailedStrategies(id string) bool {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.failedStrategies = nil
	s.mu.Unlock()
	return true
}

func containsStatus(statuses []core.SessionStatus, status core.SessionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func scoringContext(cfg config.OptimizationConfig, trials []core.Trial, in []core.Insight, failed []core.FailedStrategy, avoided int) scoring.Context {
	return scoring.Context{
		Task:             cfg.Task,
		Objective:        cfg.Objective,
		Constraints:      cfg.Constraints,
		PriorTrials:      trials,
		Insights:         in,
		FailedStrategies: failed,
		AvoidedCount:     avoided,
		LookAheadDepth:   cfg.LookAheadDepth,
	}
}
