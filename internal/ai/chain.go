package ai

import (
	"context"
	"errors"
	"fmt"

	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
)

// ErrChainExhausted is returned when every model in the chain failed with a
// recoverable error.
var ErrChainExhausted = errors.New("model chain exhausted")

// Chain tries models in order. Attempts are strictly sequential.
type Chain struct {
	gen    Generator
	models []string
}

// NewChain returns a Chain over models, most preferred first.
func NewChain(gen Generator, models []string) *Chain {
	return &Chain{gen: gen, models: append([]string(nil), models...)}
}

// Models returns the configured model order.
func (c *Chain) Models() []string {
	return append([]string(nil), c.models...)
}

// Generate returns the first successful response and the model that
// produced it.
//
// An unsupported-parameter error is retried once on the same model with
// Request.Bare. Invalid-model and rate-limit errors advance to the next
// model. Any other error aborts the chain.
func (c *Chain) Generate(ctx context.Context, req Request) (string, string, error) {
	if c == nil || c.gen == nil || len(c.models) == 0 {
		return "", "", fmt.Errorf("%w: no models configured", ErrChainExhausted)
	}

	var lastErr error
	for _, m := range c.models {
		text, err := c.attempt(ctx, m, req)
		if err == nil {
			return text, m, nil
		}

		if KindOf(err) == KindUnsupportedParameter {
			appLog.Warn("model rejected optional parameters, retrying bare", "model", m, "error", err.Error())
			text, err = c.attempt(ctx, m, req.Bare())
			if err == nil {
				return text, m, nil
			}
		}

		switch KindOf(err) {
		case KindInvalidModel, KindRateLimited, KindUnsupportedParameter:
			appLog.Warn("advancing model chain", "model", m, "kind", KindOf(err).String())
			lastErr = err
			continue
		default:
			appLog.Error("model call failed", err, "model", m)
			return "", m, err
		}
	}
	return "", "", fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}

func (c *Chain) attempt(ctx context.Context, model string, req Request) (string, error) {
	text, err := c.gen.Generate(ctx, model, req)
	if err != nil {
		metrics.ModelCall(model, KindOf(err).String())
		return "", err
	}
	metrics.ModelCall(model, "ok")
	return text, nil
}
