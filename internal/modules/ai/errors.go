package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
)

// ErrConfiguration marks errors that no retry can fix: missing credentials,
// unknown provider tags, capabilities a provider does not offer.
var ErrConfiguration = errors.New("ai configuration error")

// ConfigError carries the reason for a configuration failure.
type ConfigError struct {
	Provider ProviderType
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("ai provider %s: %s", e.Provider, e.Reason)
	}
	return "ai: " + e.Reason
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// HTTPStatus lets the response layer surface configuration errors as 422.
func (e *ConfigError) HTTPStatus() int { return http.StatusUnprocessableEntity }

// Kind classifies an upstream failure.
type Kind int

const (
	KindUpstream Kind = iota
	KindUnauthorized
	KindQuotaExhausted
	KindModelUnavailable
	KindRateLimited
	KindMalformedRequest
)

var (
	ErrUpstream         = errors.New("ai upstream failure")
	ErrUnauthorized     = errors.New("ai credential rejected")
	ErrQuotaExhausted   = errors.New("ai quota exhausted")
	ErrModelUnavailable = errors.New("ai model unavailable")
	ErrRateLimited      = errors.New("ai rate limited")
	ErrMalformedRequest = errors.New("ai request rejected")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindQuotaExhausted:
		return ErrQuotaExhausted
	case KindModelUnavailable:
		return ErrModelUnavailable
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformedRequest:
		return ErrMalformedRequest
	}
	return ErrUpstream
}

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformedRequest:
		return "malformed_request"
	}
	return "upstream"
}

// Retryable reports whether an external retry policy may redeliver.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindUpstream
}

// failover reports whether the next model in the fallback list is worth trying.
func (k Kind) failover() bool {
	return k == KindModelUnavailable || k == KindRateLimited || k == KindUpstream
}

// ProviderError is a classified upstream AI failure.
type ProviderError struct {
	Kind     Kind
	Provider ProviderType
	Model    string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.HumanMessage()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Model != "" {
		return fmt.Sprintf("%s (%s/%s)", msg, e.Provider, e.Model)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Provider)
}

func (e *ProviderError) Is(target error) bool { return target == e.Kind.sentinel() }

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) HTTPStatus() int { return http.StatusBadGateway }

// HumanMessage is the caller-facing description of the failure class.
func (e *ProviderError) HumanMessage() string {
	switch e.Kind {
	case KindUnauthorized:
		return "The AI provider rejected the configured API key"
	case KindQuotaExhausted:
		return "The AI provider account has run out of credit or quota"
	case KindModelUnavailable:
		return "The requested AI model is not available"
	case KindRateLimited:
		return "The AI provider is rate limiting requests, try again shortly"
	case KindMalformedRequest:
		return "The AI provider rejected the request as invalid"
	}
	return "The AI provider failed to answer"
}

// classify maps a raw SDK error onto the taxonomy.
func classify(provider ProviderType, model string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) || errors.Is(err, ErrConfiguration) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	out := &ProviderError{Kind: KindUpstream, Provider: provider, Model: model, Err: err}

	var oerr *openai.Error
	var aerr *anthropic.Error
	switch {
	case errors.As(err, &oerr):
		out.Status = oerr.StatusCode
		out.Message = strings.TrimSpace(oerr.Message)
		out.Kind = kindFromStatus(oerr.StatusCode)
		switch oerr.Code {
		case "insufficient_quota":
			out.Kind = KindQuotaExhausted
		case "model_not_found":
			out.Kind = KindModelUnavailable
		case "invalid_api_key":
			out.Kind = KindUnauthorized
		}
	case errors.As(err, &aerr):
		out.Status = aerr.StatusCode
		out.Kind = kindFromStatus(aerr.StatusCode)
	default:
		out.Kind = kindFromMessage(err.Error())
	}
	if out.Kind == KindUpstream && out.Status == 0 {
		out.Kind = kindFromMessage(err.Error())
	}
	return out
}

func kindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusPaymentRequired:
		return KindQuotaExhausted
	case http.StatusNotFound:
		return KindModelUnavailable
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return KindMalformedRequest
	}
	return KindUpstream
}

func kindFromMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "insufficient_quota"), strings.Contains(m, "payment required"), strings.Contains(m, "credit"):
		return KindQuotaExhausted
	case strings.Contains(m, "invalid api key"), strings.Contains(m, "invalid_api_key"), strings.Contains(m, "unauthorized"):
		return KindUnauthorized
	case strings.Contains(m, "model_not_found"), strings.Contains(m, "does not exist"), strings.Contains(m, "no such model"):
		return KindModelUnavailable
	case strings.Contains(m, "rate limit"), strings.Contains(m, "too many requests"):
		return KindRateLimited
	}
	return KindUpstream
}

// KindOf extracts the failure class, defaulting to Upstream.
func KindOf(err error) (Kind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return KindUpstream, false
}
