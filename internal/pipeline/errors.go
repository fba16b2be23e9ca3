package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/beatreel/pkg/log"
)

type ErrorType int

const (
	ErrPlanning ErrorType = iota
	ErrSynthesis
	ErrRender
	ErrQuotaExhausted
	ErrAssembly
	ErrConfiguration
	ErrCancelled
	ErrInternal
)

// ReelError is the pipeline's typed error. Context carries run-scoped
// detail (run id, beat, task id) that ends up in logs and API payloads.
type ReelError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *ReelError {
	return &ReelError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *ReelError {
	return &ReelError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *ReelError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *ReelError) Unwrap() error {
	return e.Cause
}

func (e *ReelError) WithContext(key string, value any) *ReelError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrPlanning:
		return "Planning"
	case ErrSynthesis:
		return "Synthesis"
	case ErrRender:
		return "Render"
	case ErrQuotaExhausted:
		return "QuotaExhausted"
	case ErrAssembly:
		return "Assembly"
	case ErrConfiguration:
		return "Configuration"
	case ErrCancelled:
		return "Cancelled"
	case ErrInternal:
		return "Internal"
	default:
		return "Internal"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *ReelError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var reelErr *ReelError
	if !errors.As(err, &reelErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(reelErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *ReelError) string {
	switch err.Type {
	case ErrPlanning:
		return "Check the LLM provider settings (LLM_PROVIDER, key, model) and try a more concrete topic phrasing"
	case ErrSynthesis:
		return "Check the TTS engine settings; for the command engine make sure the binary is installed and on PATH"
	case ErrRender:
		return "Check the render API key and model, or look up the task in the provider's console"
	case ErrQuotaExhausted:
		return "The render account is out of quota or credit; top up or wait for the quota window to reset before retrying"
	case ErrAssembly:
		return "Make sure ffmpeg and ffprobe are installed and that the output directory is writable"
	case ErrConfiguration:
		return "Check that configuration files or environment variables are set correctly"
	case ErrCancelled:
		return "The run was cancelled; enqueue the topic again to retry"
	default:
		return "Review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var reelErr *ReelError
	if errors.As(err, &reelErr) {
		return reelErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *ReelError {
	return NewErrorWithCause(errorType, message, err)
}
