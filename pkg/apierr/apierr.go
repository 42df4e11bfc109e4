// Package apierr provides structured API error types and HTTP status mapping
// compatible with the OpenAI error format.
package apierr

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/model-resolver/internal/providers"
)

// ErrorType constants.
const (
	TypeProviderError  = "provider_error"
	TypeRateLimitError = "rate_limit_error"
	TypeInvalidRequest = "invalid_request_error"
	TypeServerError    = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded     = "rate_limit_exceeded"
	CodeInternalError         = "internal_error"
	CodeProviderError         = "provider_error"
	CodeRequestTimeout        = "request_timeout"
	CodeInvalidRequest        = "invalid_request"
	CodeUnknownProvider       = "unknown_provider"
	CodeUnknownTask           = "unknown_task"
	CodeUnsupportedCapability = "unsupported_capability"
	CodeProviderNotConfigured = "provider_not_configured"
	CodeProviderUnavailable   = "provider_unavailable"
	CodeEmptyModel            = "empty_model"
	CodeNotFound              = "not_found"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteBadRequest writes a 400 invalid_request error.
func WriteBadRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeInvalidRequest, CodeInvalidRequest)
}

// WriteProviderError maps a provider HTTP status to the appropriate status.
//
//	Provider 429  → 429 + Retry-After: 60
//	Provider 5xx  → 502
//	Default       → 502
func WriteProviderError(ctx *fasthttp.RequestCtx, providerStatus int, msg string) {
	switch {
	case providerStatus == fasthttp.StatusTooManyRequests:
		ctx.Response.Header.Set("Retry-After", "60")
		Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeRateLimitError, CodeRateLimitExceeded)
	default:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	}
}

// WriteTimeout writes a 504 timeout error.
func WriteTimeout(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "provider request timed out", TypeProviderError, CodeRequestTimeout)
}

// WriteError maps a resolution or upstream error onto an HTTP response.
//
//	UnknownProviderError        → 400 unknown_provider
//	UnknownTask (via Coder)     → 404 unknown_task
//	UnsupportedCapabilityError  → 400 unsupported_capability
//	ErrEmptyModel               → 400 empty_model
//	ConstructionError           → 503 provider_unavailable
//	ErrNotConfigured            → 503 provider_not_configured
//	context.DeadlineExceeded    → 504
//	providers.StatusCoder       → 429 or 502
//	anything else               → 500
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	var (
		unknown     *providers.UnknownProviderError
		unsupported *providers.UnsupportedCapabilityError
		construct   *providers.ConstructionError
		sc          providers.StatusCoder
		notFound    notFoundError
	)

	switch {
	case errors.As(err, &unknown):
		Write(ctx, fasthttp.StatusBadRequest, err.Error(), TypeInvalidRequest, CodeUnknownProvider)
	case errors.As(err, &notFound) && notFound.NotFound():
		Write(ctx, fasthttp.StatusNotFound, err.Error(), TypeInvalidRequest, CodeUnknownTask)
	case errors.As(err, &unsupported):
		Write(ctx, fasthttp.StatusBadRequest, err.Error(), TypeInvalidRequest, CodeUnsupportedCapability)
	case errors.Is(err, providers.ErrEmptyModel):
		Write(ctx, fasthttp.StatusBadRequest, err.Error(), TypeInvalidRequest, CodeEmptyModel)
	case errors.As(err, &construct):
		Write(ctx, fasthttp.StatusServiceUnavailable, err.Error(), TypeServerError, CodeProviderUnavailable)
	case errors.Is(err, providers.ErrNotConfigured):
		Write(ctx, fasthttp.StatusServiceUnavailable, err.Error(), TypeServerError, CodeProviderNotConfigured)
	case errors.Is(err, context.DeadlineExceeded):
		WriteTimeout(ctx)
	case errors.As(err, &sc):
		WriteProviderError(ctx, sc.HTTPStatus(), err.Error())
	default:
		Write(ctx, fasthttp.StatusInternalServerError, err.Error(), TypeServerError, CodeInternalError)
	}
}

// notFoundError is implemented by errors that name a missing resource.
type notFoundError interface {
	error
	NotFound() bool
}
