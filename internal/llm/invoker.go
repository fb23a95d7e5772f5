package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// InvokerConfig bounds the retry/fallback behavior of every model call.
type InvokerConfig struct {
	PrimaryModel   string
	FallbackModels []string
	MaxRetries     int           // retries per model, on top of the first attempt
	InitialDelay   time.Duration // backoff start
	BackoffFactor  float64
	Temperature    float32 // applied when the request leaves Temperature nil
}

// Invoker wraps a Client with bounded retries per model and an ordered model
// fallback chain, so no other component needs retry or fallback logic.
type Invoker struct {
	client Client
	cfg    InvokerConfig
	sleep  func(context.Context, time.Duration)
	logger *zap.Logger
}

func NewInvoker(client Client, cfg InvokerConfig, logger *zap.Logger) *Invoker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.0
	}
	return &Invoker{
		client: client,
		cfg:    cfg,
		sleep:  sleepCtx,
		logger: logger,
	}
}

// Generate calls each candidate model in order, giving every model
// MaxRetries+1 attempts with exponential backoff. Only transient errors are
// retried; everything else propagates immediately. When all models are
// exhausted the last observed error is returned.
func (inv *Invoker) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = inv.cfg.PrimaryModel
	}
	if req.Temperature == nil {
		t := inv.cfg.Temperature
		req.Temperature = &t
	}
	modelsToTry := []string{model}
	for _, fb := range inv.cfg.FallbackModels {
		if fb != "" && fb != model {
			modelsToTry = append(modelsToTry, fb)
		}
	}

	var lastErr error
	for _, candidate := range modelsToTry {
		req.Model = candidate
		delay := inv.cfg.InitialDelay
		inv.logger.Info("Attempting model", zap.String("model", candidate))

		for attempt := 0; attempt <= inv.cfg.MaxRetries; attempt++ {
			resp, err := inv.client.Generate(ctx, req)
			if err == nil {
				return resp, nil
			}
			if !IsTransient(err) {
				return nil, err
			}
			lastErr = err
			inv.logger.Warn("Server error from model",
				zap.String("model", candidate),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", inv.cfg.MaxRetries+1),
				zap.Error(err))
			if attempt < inv.cfg.MaxRetries {
				inv.sleep(ctx, delay)
				delay = time.Duration(float64(delay) * inv.cfg.BackoffFactor)
			}
		}
		inv.logger.Error("All retries failed for model", zap.String("model", candidate))
	}

	inv.logger.Error("All models exhausted", zap.Error(lastErr))
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
