package entities

import (
	"errors"
	"fmt"
)

var (
	ErrDigestNotFound       = errors.New("digest not found")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrNoRecipients         = errors.New("digest has no recipients")
	ErrTestEmailRequired    = errors.New("test runs require a test email address")
	ErrRunFinalized         = errors.New("run is already in a terminal state")
	ErrDigestAlreadyRunning = errors.New("digest is already running")

	// ErrWatermarkConflict means another run moved the watermark first. Retryable.
	ErrWatermarkConflict = errors.New("digest watermark was updated concurrently")
)

// ProviderErrorKind classifies email provider failures
type ProviderErrorKind string

const (
	ProviderErrorAuth      ProviderErrorKind = "auth"
	ProviderErrorRateLimit ProviderErrorKind = "rate_limit"
	ProviderErrorDelivery  ProviderErrorKind = "delivery"
)

// ProviderAuthMessage replaces provider credential errors in delivery logs
const ProviderAuthMessage = "email provider API key is invalid or missing"

// ProviderError is returned by email provider adapters
type ProviderError struct {
	Kind       ProviderErrorKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("email provider %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("email provider %s error: %s", e.Kind, e.Message)
}

// UserMessage is the text recorded for a failed delivery
func (e *ProviderError) UserMessage() string {
	if e.Kind == ProviderErrorAuth {
		return ProviderAuthMessage
	}
	return e.Error()
}

// Retryable reports whether sending again later may succeed
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderErrorRateLimit
}
