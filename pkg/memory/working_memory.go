package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
)

// Config contains configuration options for the working memory store.
type Config struct {
	Capacity            int           `json:"capacity"`               // Default: 500
	MaxAge              time.Duration `json:"max_age"`                // Default: 24h
	MinHitsForRetention int           `json:"min_hits_for_retention"` // Default: 2
	MinSimilarity       float64       `json:"min_similarity"`         // Default: 0.3
	MaxMatches          int           `json:"max_matches"`            // Default: 5

	// LearnFromTrials thresholds
	FailureScoreThreshold float64 `json:"failure_score_threshold"` // Default: 0.3
	SuccessScoreThreshold float64 `json:"success_score_threshold"` // Default: 0.8
	LearningConfidence    float64 `json:"learning_confidence"`     // Default: 0.7
}

// DefaultConfig returns the store's baseline tunables.
func DefaultConfig() Config {
	return Config{
		Capacity:              500,
		MaxAge:                24 * time.Hour,
		MinHitsForRetention:   2,
		MinSimilarity:         0.3,
		MaxMatches:            5,
		FailureScoreThreshold: 0.3,
		SuccessScoreThreshold: 0.8,
		LearningConfidence:    0.7,
	}
}

// WorkingMemory stores and recalls failed strategies, success patterns,
// insights and free-form context by task similarity. All entry mutation is
// serialized behind one mutex; the store may safely be shared by sessions.
type WorkingMemory struct {
	config  Config
	entries map[string]*Entry
	backend Backend      // optional external recall service
	persist *SQLiteStore // optional durable local index
	logger  *logging.Logger
	mu      sync.Mutex
}

// Option defines functional options for WorkingMemory configuration.
type Option func(*WorkingMemory)

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(m *WorkingMemory) {
		m.config = cfg
	}
}

// WithCapacity bounds the number of retained entries.
func WithCapacity(n int) Option {
	return func(m *WorkingMemory) {
		m.config.Capacity = n
	}
}

// WithBackend attaches an external recall service. Backend failures are
// logged and never surface to callers.
func WithBackend(b Backend) Option {
	return func(m *WorkingMemory) {
		m.backend = b
	}
}

// WithPersistence attaches a durable SQLite index. Existing entries are
// loaded into the in-memory index at construction.
func WithPersistence(s *SQLiteStore) Option {
	return func(m *WorkingMemory) {
		m.persist = s
	}
}

// New creates a WorkingMemory with default configuration.
func New(opts ...Option) *WorkingMemory {
	m := &WorkingMemory{
		config:  DefaultConfig(),
		entries: make(map[string]*Entry),
		logger:  logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.persist != nil {
		loaded, err := m.persist.LoadAll()
		if err != nil {
			m.logger.Warn(context.Background(), "failed to load persisted working memory: %v", err)
		}
		for i := range loaded {
			e := loaded[i]
			m.entries[e.ID] = &e
		}
	}
	return m
}

// Store indexes an entry locally, then best-effort mirrors it to the
// external backend and the durable index. Only the local write can fail the
// call, and it never does today.
func (m *WorkingMemory) Store(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastAccessed.IsZero() {
		entry.LastAccessed = now
	}

	m.mu.Lock()
	e := entry
	m.entries[e.ID] = &e
	m.evictLocked()
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Store(ctx, entry); err != nil {
			m.logger.Debug(ctx, "external memory store failed, continuing local-only: %v", err)
		}
	}
	if m.persist != nil {
		if err := m.persist.Save(entry); err != nil {
			m.logger.Warn(ctx, "failed to persist working memory entry: %v", err)
		}
	}
	return nil
}

// Recall returns entries similar to the task, optionally filtered by type,
// merged with external matches, sorted by similarity descending and
// truncated to MaxMatches. Every local hit bumps the entry's hit counter
// and refreshes its last-accessed time.
func (m *WorkingMemory) Recall(ctx context.Context, task string, types ...EntryType) []Match {
	queryWords := wordSet(core.TaskPattern(task) + " " + strings.ToLower(task))

	m.mu.Lock()
	matches := make([]Match, 0)
	for _, e := range m.entries {
		if len(types) > 0 && !containsType(types, e.Type) {
			continue
		}
		sim := similarity(queryWords, e)
		if sim < m.config.MinSimilarity {
			continue
		}
		e.HitCount++
		e.LastAccessed = time.Now()
		matches = append(matches, Match{Entry: *e, Similarity: sim})
	}
	m.mu.Unlock()

	// Refresh durable bookkeeping outside the lock; best effort.
	if m.persist != nil {
		for _, match := range matches {
			if err := m.persist.Touch(match.Entry.ID, match.Entry.HitCount, match.Entry.LastAccessed); err != nil {
				m.logger.Debug(ctx, "failed to persist recall bookkeeping: %v", err)
			}
		}
	}

	if m.backend != nil {
		var filter EntryType
		if len(types) == 1 {
			filter = types[0]
		}
		external, err := m.backend.Search(ctx, task, filter, m.config.MaxMatches)
		if err != nil {
			m.logger.Debug(ctx, "external memory search failed, using local results: %v", err)
		} else {
			matches = append(matches, external...)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > m.config.MaxMatches {
		matches = matches[:m.config.MaxMatches]
	}
	return matches
}

// RecallAll fans out the four recall queries concurrently.
func (m *WorkingMemory) RecallAll(ctx context.Context, task string) Recalled {
	var out Recalled

	p := pool.New().WithMaxGoroutines(4)
	p.Go(func() { out.FailedStrategies = m.Recall(ctx, task, EntryFailedStrategy) })
	p.Go(func() { out.SuccessPatterns = m.Recall(ctx, task, EntrySuccessPattern) })
	p.Go(func() { out.Insights = m.Recall(ctx, task, EntryInsight) })
	p.Go(func() { out.Context = m.Recall(ctx, task, EntryContext) })
	p.Wait()

	return out
}

// StoreFailedStrategy indexes a failed-strategy record.
func (m *WorkingMemory) StoreFailedStrategy(ctx context.Context, fs core.FailedStrategy) error {
	return m.Store(ctx, Entry{
		Type:        EntryFailedStrategy,
		Content:     fs.Strategy,
		TaskPattern: fs.TaskPattern,
		Confidence:  0.8,
		CreatedAt:   fs.CreatedAt,
		HitCount:    fs.HitCount,
		Metadata: map[string]interface{}{
			"reason":    fs.Reason,
			"avoidance": fs.Avoidance,
		},
	})
}

// StoreInsight indexes an insight for a task.
func (m *WorkingMemory) StoreInsight(ctx context.Context, in core.Insight, task string) error {
	return m.Store(ctx, Entry{
		Type:        EntryInsight,
		Content:     in.Content,
		TaskPattern: core.TaskPattern(task),
		Confidence:  in.Confidence,
		CreatedAt:   in.CreatedAt,
		Metadata: map[string]interface{}{
			"insight_type": string(in.Type),
			"trial_id":     in.TrialID,
		},
	})
}

// RecallFailedStrategies reconstructs FailedStrategy records relevant to a
// task, hit counts included.
func (m *WorkingMemory) RecallFailedStrategies(ctx context.Context, task string) []core.FailedStrategy {
	matches := m.Recall(ctx, task, EntryFailedStrategy)
	out := make([]core.FailedStrategy, 0, len(matches))
	for _, match := range matches {
		e := match.Entry
		reason, _ := e.Metadata["reason"].(string)
		avoidance, _ := e.Metadata["avoidance"].(string)
		out = append(out, core.FailedStrategy{
			Strategy:    e.Content,
			Reason:      reason,
			TaskPattern: e.TaskPattern,
			Avoidance:   avoidance,
			CreatedAt:   e.CreatedAt,
			HitCount:    e.HitCount,
		})
	}
	return out
}

// LearnCounts reports what LearnFromTrials stored.
type LearnCounts struct {
	FailedStrategies int `json:"failed_strategies"`
	SuccessPatterns  int `json:"success_patterns"`
	Insights         int `json:"insights"`
}

// LearnFromTrials distills a trial batch into memory: a failed strategy per
// low-scoring trial, a success pattern per high-scoring trial, and an entry
// per sufficiently confident insight.
func (m *WorkingMemory) LearnFromTrials(ctx context.Context, task string, trials []core.Trial, insights []core.Insight) LearnCounts {
	var counts LearnCounts
	pattern := core.TaskPattern(task)

	for _, t := range trials {
		switch {
		case t.Score.Total < m.config.FailureScoreThreshold:
			err := m.Store(ctx, Entry{
				Type:        EntryFailedStrategy,
				Content:     strings.TrimSpace(t.Solution.Content),
				TaskPattern: pattern,
				Confidence:  0.8,
				Metadata: map[string]interface{}{
					"reason":    "scored below failure threshold",
					"avoidance": "avoid this approach for similar tasks",
					"score":     t.Score.Total,
				},
			})
			if err == nil {
				counts.FailedStrategies++
			}
		case t.Score.Total >= m.config.SuccessScoreThreshold:
			err := m.Store(ctx, Entry{
				Type:        EntrySuccessPattern,
				Content:     strings.TrimSpace(t.Solution.Content),
				TaskPattern: pattern,
				Confidence:  0.9,
				Metadata:    map[string]interface{}{"score": t.Score.Total},
			})
			if err == nil {
				counts.SuccessPatterns++
			}
		}
	}

	for _, in := range insights {
		if in.Confidence < m.config.LearningConfidence {
			continue
		}
		if err := m.StoreInsight(ctx, in, task); err == nil {
			counts.Insights++
		}
	}

	return counts
}

// Len reports the number of locally indexed entries.
func (m *WorkingMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked enforces the capacity bound. First pass removes entries that
// are both past MaxAge and below the retention hit count; if still over
// capacity, the oldest-by-last-access go next. Caller holds m.mu.
func (m *WorkingMemory) evictLocked() {
	if len(m.entries) <= m.config.Capacity {
		return
	}

	now := time.Now()
	for id, e := range m.entries {
		if now.Sub(e.CreatedAt) > m.config.MaxAge && e.HitCount < m.config.MinHitsForRetention {
			delete(m.entries, id)
			m.deleteDurable(id)
		}
	}

	if len(m.entries) <= m.config.Capacity {
		return
	}

	remaining := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		remaining = append(remaining, e)
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].LastAccessed.Before(remaining[j].LastAccessed)
	})
	for _, e := range remaining {
		if len(m.entries) <= m.config.Capacity {
			break
		}
		delete(m.entries, e.ID)
		m.deleteDurable(e.ID)
	}
}

func (m *WorkingMemory) deleteDurable(id string) {
	if m.persist == nil {
		return
	}
	if err := m.persist.Delete(id); err != nil {
		m.logger.Debug(context.Background(), "failed to delete persisted entry %s: %v", id, err)
	}
}

// similarity blends task-vs-pattern word overlap (70%) with task-vs-content
// overlap (30%).
func similarity(queryWords map[string]struct{}, e *Entry) float64 {
	patternOverlap := overlap(wordSet(e.TaskPattern), queryWords)
	contentOverlap := overlap(wordSet(strings.ToLower(e.Content)), queryWords)
	return 0.7*patternOverlap + 0.3*contentOverlap
}

// overlap is the fraction of candidate words present in the query set.
func overlap(candidate, query map[string]struct{}) float64 {
	if len(candidate) == 0 {
		return 0
	}
	hits := 0
	for w := range candidate {
		if _, ok := query[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(candidate))
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func containsType(types []EntryType, t EntryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
