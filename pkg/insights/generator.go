package insights

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
)

// Config contains configuration options for the insights generator.
type Config struct {
	SuccessThreshold    float64 `json:"success_threshold"`      // Default: 0.8
	FailureThreshold    float64 `json:"failure_threshold"`      // Default: 0.3
	DeltaThreshold      float64 `json:"delta_threshold"`        // Default: 0.15
	MaxInsightsPerTrial int     `json:"max_insights_per_trial"` // Default: 5

	// Pattern detection
	PatternWindow        int     `json:"pattern_window"`        // Default: 5
	OscillationTolerance float64 `json:"oscillation_tolerance"` // Default: 0.05
	PlateauVariance      float64 `json:"plateau_variance"`      // Default: 0.001
	BreakthroughJump     float64 `json:"breakthrough_jump"`     // Default: 0.25

	// Failed-strategy extraction
	MinStrategyConfidence float64 `json:"min_strategy_confidence"` // Default: 0.6
}

// DefaultConfig returns the generator's baseline tunables.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold:      0.8,
		FailureThreshold:      0.3,
		DeltaThreshold:        0.15,
		MaxInsightsPerTrial:   5,
		PatternWindow:         5,
		OscillationTolerance:  0.05,
		PlateauVariance:       0.001,
		BreakthroughJump:      0.25,
		MinStrategyConfidence: 0.6,
	}
}

// PatternType tags a cross-trial behavior the generator recognizes.
type PatternType string

const (
	PatternOscillation  PatternType = "oscillation"
	PatternPlateau      PatternType = "plateau"
	PatternBreakthrough PatternType = "breakthrough"
)

// Pattern records a detected cross-trial behavior. Patterns accumulate
// across Reflect calls until Reset.
type Pattern struct {
	Type           PatternType `json:"type"`
	Occurrences    int         `json:"occurrences"`
	Confidence     float64     `json:"confidence"`
	TrialIDs       []string    `json:"trial_ids"`
	Recommendation string      `json:"recommendation"`
}

// Generator turns trial history into reusable insights.
type Generator struct {
	config   Config
	patterns map[PatternType]*Pattern
	logger   *logging.Logger
	mu       sync.Mutex
}

// Option defines functional options for Generator configuration.
type Option func(*Generator)

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(g *Generator) {
		g.config = cfg
	}
}

// WithThresholds sets the success and failure score thresholds.
func WithThresholds(success, failure float64) Option {
	return func(g *Generator) {
		g.config.SuccessThreshold = success
		g.config.FailureThreshold = failure
	}
}

// New creates a Generator with default configuration.
func New(opts ...Option) *Generator {
	g := &Generator{
		config:   DefaultConfig(),
		patterns: make(map[PatternType]*Pattern),
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reflect produces zero or more insights from the newly completed trial,
// the full history (which includes it) and prior insights. The result is
// bounded by MaxInsightsPerTrial.
func (g *Generator) Reflect(trial core.Trial, history []core.Trial, prior []core.Insight) []core.Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]core.Insight, 0, g.config.MaxInsightsPerTrial)

	if in, ok := g.classifyOutcome(trial); ok {
		out = append(out, in)
	}
	if in, ok := g.compareWithPrevious(trial, history); ok {
		out = append(out, in)
	}
	if in, ok := g.assessStrategy(trial, history); ok {
		out = append(out, in)
	}
	for _, p := range g.detectPatterns(history) {
		out = append(out, g.patternInsight(trial, p))
	}

	if len(out) > g.config.MaxInsightsPerTrial {
		out = out[:g.config.MaxInsightsPerTrial]
	}
	return out
}

// classifyOutcome labels an individual trial as success or failure when its
// total score clears either threshold.
func (g *Generator) classifyOutcome(trial core.Trial) (core.Insight, bool) {
	score := trial.Score.Total
	switch {
	case score >= g.config.SuccessThreshold:
		return g.newInsight(trial.ID, core.InsightSuccess,
			fmt.Sprintf("iteration %d scored %.2f, at or above the success threshold; approach worth reinforcing", trial.Iteration, score),
			0.8, []string{"scoring", "outcome"}), true
	case score <= g.config.FailureThreshold:
		return g.newInsight(trial.ID, core.InsightFailure,
			fmt.Sprintf("iteration %d scored %.2f, at or below the failure threshold; approach should be avoided", trial.Iteration, score),
			0.8, []string{"scoring", "outcome"}), true
	default:
		return core.Insight{}, false
	}
}

// compareWithPrevious flags material improvement or regression against the
// immediately preceding trial.
func (g *Generator) compareWithPrevious(trial core.Trial, history []core.Trial) (core.Insight, bool) {
	var prev *core.Trial
	for i := range history {
		if history[i].Iteration == trial.Iteration-1 {
			prev = &history[i]
			break
		}
	}
	if prev == nil {
		return core.Insight{}, false
	}

	delta := trial.Score.Total - prev.Score.Total
	switch {
	case delta >= g.config.DeltaThreshold:
		return g.newInsight(trial.ID, core.InsightSuccess,
			fmt.Sprintf("score improved by %.2f over the previous trial; the change between iterations %d and %d paid off", delta, prev.Iteration, trial.Iteration),
			0.7, []string{"delta", "trend"}), true
	case delta <= -g.config.DeltaThreshold:
		return g.newInsight(trial.ID, core.InsightFailure,
			fmt.Sprintf("score regressed by %.2f from the previous trial; the change between iterations %d and %d hurt", -delta, prev.Iteration, trial.Iteration),
			0.7, []string{"delta", "trend"}), true
	default:
		return core.Insight{}, false
	}
}

// assessStrategy comments on how the recorded exploration strategy is
// performing across the trials that used it.
func (g *Generator) assessStrategy(trial core.Trial, history []core.Trial) (core.Insight, bool) {
	strategy, _ := trial.Solution.Metadata[core.MetaStrategy].(string)
	if strategy == "" {
		return core.Insight{}, false
	}

	var sum float64
	var count int
	for _, t := range history {
		if s, _ := t.Solution.Metadata[core.MetaStrategy].(string); s == strategy {
			sum += t.Score.Total
			count++
		}
	}
	if count < 2 {
		return core.Insight{}, false
	}

	avg := sum / float64(count)
	verdict := "is holding steady"
	if avg >= g.config.SuccessThreshold {
		verdict = "is working well"
	} else if avg <= g.config.FailureThreshold {
		verdict = "is underperforming"
	}

	return g.newInsight(trial.ID, core.InsightObservation,
		fmt.Sprintf("strategy %q %s: average score %.2f over %d trials", strategy, verdict, avg, count),
		0.6, []string{"strategy", strategy}), true
}

// detectPatterns scans the trailing window for oscillation, plateau and
// breakthrough behavior, accumulating occurrences across calls.
func (g *Generator) detectPatterns(history []core.Trial) []*Pattern {
	window := history
	if len(window) > g.config.PatternWindow {
		window = window[len(window)-g.config.PatternWindow:]
	}
	if len(window) < 3 {
		return nil
	}

	detected := make([]*Pattern, 0, 3)

	if g.isOscillating(window) {
		detected = append(detected, g.recordPattern(PatternOscillation, window,
			"scores alternate up and down; reduce temperature or switch to a steadier strategy"))
	}
	if g.isPlateau(window) {
		detected = append(detected, g.recordPattern(PatternPlateau, window,
			"scores have flattened with no improvement; reheat or reconstruct from scratch"))
	}
	if g.hasBreakthrough(window) {
		detected = append(detected, g.recordPattern(PatternBreakthrough, window,
			"a large single-step jump occurred; exploit the new best before exploring further"))
	}
	return detected
}

func (g *Generator) isOscillating(window []core.Trial) bool {
	directions := 0
	flips := 0
	prevDir := 0
	for i := 1; i < len(window); i++ {
		diff := window[i].Score.Total - window[i-1].Score.Total
		if math.Abs(diff) <= g.config.OscillationTolerance {
			continue
		}
		dir := 1
		if diff < 0 {
			dir = -1
		}
		if prevDir != 0 && dir != prevDir {
			flips++
		}
		prevDir = dir
		directions++
	}
	return directions >= 2 && flips >= directions-1
}

func (g *Generator) isPlateau(window []core.Trial) bool {
	mean := 0.0
	for _, t := range window {
		mean += t.Score.Total
	}
	mean /= float64(len(window))

	variance := 0.0
	improved := false
	for i, t := range window {
		d := t.Score.Total - mean
		variance += d * d
		if i > 0 && t.Score.Total > window[i-1].Score.Total+g.config.OscillationTolerance {
			improved = true
		}
	}
	variance /= float64(len(window))

	return variance < g.config.PlateauVariance && !improved
}

func (g *Generator) hasBreakthrough(window []core.Trial) bool {
	for i := 1; i < len(window); i++ {
		if window[i].Score.Total-window[i-1].Score.Total >= g.config.BreakthroughJump {
			return true
		}
	}
	return false
}

// recordPattern bumps the persistent pattern record and returns it.
func (g *Generator) recordPattern(pt PatternType, window []core.Trial, recommendation string) *Pattern {
	p, ok := g.patterns[pt]
	if !ok {
		p = &Pattern{Type: pt, Recommendation: recommendation}
		g.patterns[pt] = p
	}
	p.Occurrences++
	p.Confidence = math.Min(0.95, 0.5+0.1*float64(p.Occurrences))

	p.TrialIDs = p.TrialIDs[:0]
	for _, t := range window {
		p.TrialIDs = append(p.TrialIDs, t.ID)
	}
	return p
}

func (g *Generator) patternInsight(trial core.Trial, p *Pattern) core.Insight {
	return g.newInsight(trial.ID, core.InsightPattern,
		fmt.Sprintf("%s detected (seen %d times): %s", p.Type, p.Occurrences, p.Recommendation),
		p.Confidence, []string{"pattern", string(p.Type)})
}

// Patterns returns a snapshot of all patterns accumulated so far.
func (g *Generator) Patterns() []Pattern {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Pattern, 0, len(g.patterns))
	for _, p := range g.patterns {
		cp := *p
		cp.TrialIDs = append([]string(nil), p.TrialIDs...)
		out = append(out, cp)
	}
	return out
}

// Reset clears accumulated patterns for a new optimization run.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patterns = make(map[PatternType]*Pattern)
}

// ExtractFailedStrategies converts failure-typed, sufficiently confident
// insights into avoidable strategy records tagged with the task signature.
func (g *Generator) ExtractFailedStrategies(insights []core.Insight, task string) []core.FailedStrategy {
	pattern := core.TaskPattern(task)
	out := make([]core.FailedStrategy, 0)
	for _, in := range insights {
		if in.Type != core.InsightFailure || in.Confidence < g.config.MinStrategyConfidence {
			continue
		}
		out = append(out, core.FailedStrategy{
			Strategy:    in.Content,
			Reason:      "low-scoring trial: " + in.Content,
			TaskPattern: pattern,
			Avoidance:   "avoid repeating the approach described; try a structurally different one",
			CreatedAt:   time.Now(),
		})
	}
	return out
}

// SummarizeInsights renders insights as a compact text block suitable for
// injection into a generation prompt.
func (g *Generator) SummarizeInsights(insights []core.Insight) string {
	if len(insights) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Learnings from previous attempts:\n")
	for _, in := range insights {
		fmt.Fprintf(&b, "- [%s] %s (confidence %.2f)\n", in.Type, in.Content, in.Confidence)
	}
	return b.String()
}

func (g *Generator) newInsight(trialID string, t core.InsightType, content string, confidence float64, tags []string) core.Insight {
	return core.Insight{
		ID:            uuid.New().String(),
		TrialID:       trialID,
		Type:          t,
		Content:       content,
		Confidence:    confidence,
		Applicability: tags,
		CreatedAt:     time.Now(),
	}
}
