package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransientIO   = errors.New("transient io error")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrProtocol      = errors.New("protocol error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
)

// Kind names the error class used by logs, metrics and the journal.
type Kind string

const (
	KindTransientIO   Kind = "transient_io"
	KindExternalTool  Kind = "external_tool"
	KindConfiguration Kind = "configuration"
	KindProtocol      Kind = "protocol"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindCanceled      Kind = "canceled"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error chain to its Kind. Markers win over context
// cancellation so a tool killed during shutdown still reads as a tool failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientIO):
		return KindTransientIO
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// Retryable reports whether the workflow should schedule another attempt
// automatically. Configuration and protocol problems need a human or a new
// response and are never retried on their own.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransientIO, KindExternalTool, KindCanceled, KindUnknown:
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
