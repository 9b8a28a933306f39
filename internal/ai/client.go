// Package ai wraps the Gemini API behind a small Generator interface and
// builds the model fallback chain and the digest organizer on top of it.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind classifies a failed model call so callers can branch on it
// instead of matching error text.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUnsupportedParameter
	KindRateLimited
	KindInvalidModel
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedParameter:
		return "unsupported_parameter"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidModel:
		return "invalid_model"
	default:
		return "other"
	}
}

// CallError is returned by Generator implementations.
type CallError struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err. Errors that are not a *CallError
// are KindOther.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

// Request is one model call. Everything except Prompt is optional and may be
// dropped when a model rejects it.
type Request struct {
	Prompt      string
	System      string
	Temperature *float32
	JSON        bool
}

// Bare returns the request without optional settings. The system
// instruction is folded into the prompt.
func (r Request) Bare() Request {
	prompt := r.Prompt
	if r.System != "" {
		prompt = r.System + "\n\n" + r.Prompt
	}
	return Request{Prompt: prompt}
}

// Generator produces text from one model.
type Generator interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
}

// Gemini is a Generator backed by google.golang.org/genai.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required (set GEMINI_API_KEY or ai.api_key)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, model string, req Request) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	var cfg *genai.GenerateContentConfig
	if req.System != "" || req.Temperature != nil || req.JSON {
		cfg = &genai.GenerateContentConfig{Temperature: req.Temperature}
		if req.System != "" {
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
		}
		if req.JSON {
			cfg.ResponseMIMEType = "application/json"
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", &CallError{Kind: classify(err), Model: model, Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", &CallError{Kind: KindOther, Model: model, Err: errors.New("empty response from model")}
	}
	return text, nil
}

func classify(err error) ErrorKind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.Code, apiErr.Status, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message)
	}
	return KindOther
}

// classifyAPIError maps an API status to an ErrorKind.
func classifyAPIError(code int, status, message string) ErrorKind {
	msg := strings.ToLower(message)
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return KindRateLimited
	case code == http.StatusNotFound || status == "NOT_FOUND":
		return KindInvalidModel
	case strings.Contains(msg, "model") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "is not supported") || strings.Contains(msg, "does not exist")):
		return KindInvalidModel
	case code == http.StatusBadRequest || status == "INVALID_ARGUMENT":
		if strings.Contains(msg, "unsupported") ||
			strings.Contains(msg, "not supported") ||
			strings.Contains(msg, "not enabled") ||
			strings.Contains(msg, "unknown name") ||
			strings.Contains(msg, "invalid value at") {
			return KindUnsupportedParameter
		}
	}
	return KindOther
}
