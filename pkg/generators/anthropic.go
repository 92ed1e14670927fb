// Package generators provides optional LLM-backed collaborator adapters.
// The engine never imports this package; callers wire these in as the
// GenerateFunc/ScoreFunc collaborators when they want model-driven search.
package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/errors"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
)

// AnthropicConfig configures the Claude-backed adapters.
type AnthropicConfig struct {
	APIKey    string
	Model     anthropic.Model // Default: claude-sonnet
	MaxTokens int             // Default: 2048
	BaseURL   string          // Optional endpoint override
}

// AnthropicAdapter produces GenerateFunc and ScoreFunc collaborators backed
// by the Anthropic Messages API.
type AnthropicAdapter struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
	logger    *logging.Logger
}

// NewAnthropicAdapter creates an adapter from config.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicAdapter{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logging.GetLogger(),
	}, nil
}

// Generator returns a GenerateFunc that prompts the model with the task,
// the current best, accumulated learnings and the avoid-list.
func (a *AnthropicAdapter) Generator() core.GenerateFunc {
	return func(ctx context.Context, gc core.GeneratorContext) (core.Solution, error) {
		prompt := buildGenerationPrompt(gc)

		content, err := a.complete(ctx, prompt, gc.Temperature)
		if err != nil {
			return core.Solution{}, err
		}

		return core.Solution{
			ID:        uuid.New().String(),
			Content:   content,
			CreatedAt: time.Now(),
			Iteration: gc.Iteration,
			ParentID:  parentID(gc),
		}, nil
	}
}

// Scorer returns a ScoreFunc that asks the model for a four-component JSON
// verdict. Malformed responses degrade to a low-confidence neutral score.
func (a *AnthropicAdapter) Scorer() core.ScoreFunc {
	return func(ctx context.Context, sol core.Solution, sc core.ScorerContext) (core.SolutionScore, error) {
		prompt := buildScoringPrompt(sol, sc)

		content, err := a.complete(ctx, prompt, 0)
		if err != nil {
			return core.SolutionScore{}, err
		}

		verdict, ok := parseVerdict(content)
		if !ok {
			a.logger.Debug(ctx, "unparseable scoring verdict, using neutral fallback")
			return core.SolutionScore{
				Immediate:  0.5,
				Confidence: 0.1,
				Reasoning:  "scoring response could not be parsed",
			}, nil
		}
		return verdict, nil
	}
}

func (a *AnthropicAdapter) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: a.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   int64(a.maxTokens),
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.GeneratorFailed, "anthropic request failed")
	}
	if message == nil || len(message.Content) == 0 {
		return "", errors.New(errors.GeneratorFailed, "empty response from anthropic")
	}

	if block := message.Content[0]; block.Type == "text" {
		return block.Text, nil
	}
	return "", errors.New(errors.GeneratorFailed, "no text block in anthropic response")
}

func buildGenerationPrompt(gc core.GeneratorContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", gc.Task)
	if gc.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", gc.Objective)
	}
	for _, c := range gc.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", c)
	}

	if gc.CurrentBest != nil {
		fmt.Fprintf(&b, "\nCurrent best solution:\n%s\n", gc.CurrentBest.Content)
		if gc.Temperature > 0.5 {
			b.WriteString("\nExplore a substantially different approach from the current best.\n")
		} else {
			b.WriteString("\nImprove on the current best solution.\n")
		}
	}

	if len(gc.Insights) > 0 {
		b.WriteString("\nLearnings from previous attempts:\n")
		for _, in := range gc.Insights {
			fmt.Fprintf(&b, "- [%s] %s\n", in.Type, in.Content)
		}
	}

	if len(gc.FailedStrategies) > 0 {
		b.WriteString("\nApproaches known to fail; do not repeat them:\n")
		for _, fs := range gc.FailedStrategies {
			fmt.Fprintf(&b, "- %s (%s)\n", fs.Strategy, fs.Avoidance)
		}
	}

	fmt.Fprintf(&b, "\nProduce the solution for iteration %d. Respond with the solution only.\n", gc.Iteration)
	return b.String()
}

func buildScoringPrompt(sol core.Solution, sc core.ScorerContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", sc.Task)
	if sc.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", sc.Objective)
	}
	fmt.Fprintf(&b, "\nCandidate solution:\n%s\n", sol.Content)

	b.WriteString(`
Score this candidate. Respond with JSON only:
{"correctness": 0.0, "efficiency": 0.0, "maintainability": 0.0, "potential": 0.0, "reasoning": "..."}
All values in [0,1].`)
	return b.String()
}

type verdictJSON struct {
	Correctness     float64 `json:"correctness"`
	Efficiency      float64 `json:"efficiency"`
	Maintainability float64 `json:"maintainability"`
	Potential       float64 `json:"potential"`
	Reasoning       string  `json:"reasoning"`
}

// parseVerdict extracts the first JSON object from a model response.
func parseVerdict(content string) (core.SolutionScore, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return core.SolutionScore{}, false
	}

	var v verdictJSON
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return core.SolutionScore{}, false
	}

	immediate := (v.Correctness + v.Efficiency + v.Maintainability + v.Potential) / 4
	return core.SolutionScore{
		Immediate: immediate,
		Breakdown: core.ScoreBreakdown{
			Correctness:     v.Correctness,
			Efficiency:      v.Efficiency,
			Maintainability: v.Maintainability,
			Potential:       v.Potential,
		},
		Confidence: 0.7,
		Reasoning:  v.Reasoning,
	}, true
}

func parentID(gc core.GeneratorContext) string {
	if gc.CurrentBest != nil {
		return gc.CurrentBest.ID
	}
	return ""
}
