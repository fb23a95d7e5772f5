package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
)

// LoopResult is everything one tool-call exchange produced. Text is empty when
// the turn budget ran out before the model answered in plain text; callers
// must treat that as "no clear action" and escalate.
type LoopResult struct {
	Text    string
	Results map[string]any
	Called  []string
	Args    map[string]map[string]any
}

// CalledAny reports whether any of the given tools was requested.
func (r *LoopResult) CalledAny(names ...string) string {
	for _, called := range r.Called {
		for _, name := range names {
			if called == name {
				return called
			}
		}
	}
	return ""
}

// Loop drives a bounded multi-turn exchange with the model: send context plus
// the turn's tool allow-list, execute requested tools locally, feed results
// back, and repeat until the model answers with plain text or the turn budget
// is exhausted.
type Loop struct {
	invoker *Invoker
	logger  *zap.Logger
}

func NewLoop(invoker *Invoker, logger *zap.Logger) *Loop {
	return &Loop{invoker: invoker, logger: logger}
}

func (l *Loop) Run(
	ctx context.Context,
	transcript []models.Message,
	systemPrompt string,
	registry *Registry,
	maxTurns int,
) (*LoopResult, error) {
	if maxTurns <= 0 {
		maxTurns = 1
	}

	working := make([]models.Message, len(transcript))
	copy(working, transcript)

	result := &LoopResult{
		Results: map[string]any{},
		Args:    map[string]map[string]any{},
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := l.invoker.Generate(ctx, Request{
			SystemPrompt: systemPrompt,
			Messages:     working,
			Tools:        registry.Tools(),
		})
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			// Normal termination: the model answered in plain text.
			result.Text = resp.Text
			return result, nil
		}

		result.Text = resp.Text
		var invoked []string
		feedback := map[string]any{}
		for _, tc := range resp.ToolCalls {
			if !registry.Has(tc.Name) {
				l.logger.Warn("Model requested unknown tool", zap.String("tool", tc.Name))
				continue
			}
			l.logger.Info("Calling tool", zap.String("tool", tc.Name), zap.Any("args", tc.Args))
			value, err := registry.call(tc.Name, tc.Args)
			if err != nil {
				// Tool failures are recorded as null results, never fatal.
				l.logger.Error("Tool execution failed", zap.String("tool", tc.Name), zap.Error(err))
				value = nil
			}
			result.Results[tc.Name] = value
			result.Args[tc.Name] = tc.Args
			result.Called = append(result.Called, tc.Name)
			invoked = append(invoked, tc.Name)
			feedback[tc.Name] = value
		}

		if len(invoked) == 0 {
			// Only unknown tools requested; nothing to feed back.
			return result, nil
		}

		working = append(working, models.Message{
			Role:      models.RoleModel,
			Text:      resp.Text,
			ToolCalls: invoked,
		})
		working = append(working, models.Message{
			Role: models.RoleTool,
			Text: encodeToolFeedback(feedback),
		})
	}

	return result, nil
}

func encodeToolFeedback(results map[string]any) string {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Sprintf("%v", results)
	}
	return string(raw)
}
