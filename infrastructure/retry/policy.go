package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// StatusCoder is implemented by errors that carry a backend HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Policy is an immutable description of which failures are retried and how long to back off.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// RetryableStatusCodes lists backend status codes worth retrying.
	RetryableStatusCodes []int
	// RetryableMessages lists case-insensitive substrings of retryable error messages.
	RetryableMessages []string
	// RetryableNetworkErrors lists errors (usually syscall.Errno values) matched with errors.Is.
	RetryableNetworkErrors []error
	// Classifier, when set, replaces the built-in predicates.
	Classifier func(error) bool
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:            DefaultMaxAttempts,
		InitialDelay:           DefaultInitialDelay,
		MaxDelay:               DefaultMaxDelay,
		BackoffMultiplier:      DefaultBackoffMultiplier,
		RetryableStatusCodes:   DefaultRetryableStatusCodes(),
		RetryableMessages:      DefaultRetryableMessages(),
		RetryableNetworkErrors: DefaultRetryableNetworkErrors(),
	}
}

// DefaultRetryableStatusCodes returns request timeout, throttling and transient 5xx codes.
func DefaultRetryableStatusCodes() []int {
	return []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
}

// DefaultRetryableMessages returns message fragments that indicate a transient failure.
func DefaultRetryableMessages() []string {
	return []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"network is unreachable",
		"too many requests",
		"service unavailable",
		"es_rejected_execution_exception",
	}
}

// DefaultRetryableNetworkErrors returns socket-level error codes that indicate a transient failure.
func DefaultRetryableNetworkErrors() []error {
	return []error{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ECONNABORTED,
		syscall.ETIMEDOUT,
		syscall.EPIPE,
		syscall.EHOSTUNREACH,
	}
}

func (p *Policy) setDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

// IsRetryable classifies err using the policy predicates.
func (p Policy) IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if p.Classifier != nil {
		return p.Classifier(err)
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return slices.Contains(p.RetryableStatusCodes, coder.StatusCode())
	}

	for _, target := range p.RetryableNetworkErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range p.RetryableMessages {
		if strings.Contains(msg, strings.ToLower(fragment)) {
			return true
		}
	}

	return false
}
