// Package ocrerr defines the error taxonomy of the recognition pipeline.
//
// Every failure that can reach a caller is an *Error carrying a Kind (what
// went wrong), a Reason (the dominant cause category) and one human-readable
// message. Per-kind sentinels make errors.Is work across wrapping.
package ocrerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Kind identifies a class of pipeline failure.
type Kind string

const (
	KindInvalidRequest          Kind = "InvalidRequest"
	KindInvalidImage            Kind = "InvalidImage"
	KindUnsupportedFormat       Kind = "UnsupportedFormat"
	KindPayloadTooLarge         Kind = "PayloadTooLarge"
	KindEngineAcquisitionFailed Kind = "EngineAcquisitionFailed"
	KindRecognitionTimeout      Kind = "RecognitionTimeout"
	KindRecognitionFailed       Kind = "RecognitionFailed"
	KindEmptyResult             Kind = "EmptyResult"
	KindAllStrategiesExhausted  Kind = "AllStrategiesExhausted"
	KindCleanupFailed           Kind = "CleanupFailed"
	KindCanceled                Kind = "Canceled"
)

// Reason is the cause category surfaced to users.
type Reason string

const (
	ReasonNetwork                Reason = "network"
	ReasonUnsupportedEnvironment Reason = "unsupported_environment"
	ReasonTimeout                Reason = "timeout"
	ReasonEngine                 Reason = "engine"
	ReasonInput                  Reason = "input"
	ReasonUnknown                Reason = "unknown"
)

// reasonRank orders reasons from most to least specific.
var reasonRank = map[Reason]int{
	ReasonNetwork:                0,
	ReasonUnsupportedEnvironment: 1,
	ReasonTimeout:                2,
	ReasonEngine:                 3,
	ReasonInput:                  4,
	ReasonUnknown:                5,
}

// Phases of an attempt.
const (
	PhaseValidate   = "validate"
	PhaseLoad       = "load"
	PhaseInitialize = "initialize"
	PhaseRecognize  = "recognize"
	PhaseRelease    = "release"
)

// ErrEngineUnavailable marks failures caused by a missing engine backend.
var ErrEngineUnavailable = errors.New("recognition engine unavailable in this build")

// Error is a structured pipeline error.
type Error struct {
	Kind     Kind
	Reason   Reason
	Strategy string
	Phase    string
	Message  string
	Cause    error
	// Attempts holds the per-strategy failures of an exhausted cascade.
	Attempts []*Error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Strategy != "" {
		fmt.Fprintf(&b, " [%s", e.Strategy)
		if e.Phase != "" {
			fmt.Fprintf(&b, "/%s", e.Phase)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest}
	ErrInvalidImage            = &Error{Kind: KindInvalidImage}
	ErrUnsupportedFormat       = &Error{Kind: KindUnsupportedFormat}
	ErrPayloadTooLarge         = &Error{Kind: KindPayloadTooLarge}
	ErrEngineAcquisitionFailed = &Error{Kind: KindEngineAcquisitionFailed}
	ErrRecognitionTimeout      = &Error{Kind: KindRecognitionTimeout}
	ErrRecognitionFailed       = &Error{Kind: KindRecognitionFailed}
	ErrEmptyResult             = &Error{Kind: KindEmptyResult}
	ErrAllStrategiesExhausted  = &Error{Kind: KindAllStrategiesExhausted}
	ErrCleanupFailed           = &Error{Kind: KindCleanupFailed}
	ErrCanceled                = &Error{Kind: KindCanceled}
)

// InvalidRequest reports a malformed recognition request.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Reason:  ReasonInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidImage reports an empty or undecodable image.
func InvalidImage(message string, cause error) *Error {
	return &Error{
		Kind:    KindInvalidImage,
		Reason:  ReasonInput,
		Phase:   PhaseValidate,
		Message: message,
		Cause:   cause,
	}
}

// UnsupportedFormat reports an image type outside the allow-list.
func UnsupportedFormat(mimeType string) *Error {
	if mimeType == "" {
		mimeType = "unknown"
	}
	return &Error{
		Kind:    KindUnsupportedFormat,
		Reason:  ReasonInput,
		Phase:   PhaseValidate,
		Message: fmt.Sprintf("unsupported image format %q: use PNG, JPEG, GIF or BMP", mimeType),
	}
}

// PayloadTooLarge reports an image above the size ceiling.
func PayloadTooLarge(size, limit int64) *Error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Reason:  ReasonInput,
		Phase:   PhaseValidate,
		Message: fmt.Sprintf("image is %d bytes, the limit is %d bytes", size, limit),
	}
}

// ImageTooLarge reports an image whose decoded size exceeds limit pixels.
func ImageTooLarge(width, height int, limit int64) *Error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Reason:  ReasonInput,
		Phase:   PhaseValidate,
		Message: fmt.Sprintf("image is %dx%d pixels, the limit is %d pixels", width, height, limit),
	}
}

// AcquisitionFailed reports a failed load or initialize phase.
func AcquisitionFailed(strategy, phase string, cause error) *Error {
	reason := Classify(cause)
	if reason == ReasonUnknown {
		reason = ReasonEngine
	}
	return &Error{
		Kind:     KindEngineAcquisitionFailed,
		Reason:   reason,
		Strategy: strategy,
		Phase:    phase,
		Message:  acquisitionMessage(reason, phase),
		Cause:    cause,
	}
}

func acquisitionMessage(reason Reason, phase string) string {
	switch reason {
	case ReasonNetwork:
		return "network error while fetching language data"
	case ReasonUnsupportedEnvironment:
		return "recognition engine is not supported in this environment"
	}
	if phase == PhaseInitialize {
		return "engine initialization failed"
	}
	return "engine load failed"
}

// Timeout reports an attempt phase that exceeded its budget.
func Timeout(strategy, phase string, budget time.Duration) *Error {
	return &Error{
		Kind:     KindRecognitionTimeout,
		Reason:   ReasonTimeout,
		Strategy: strategy,
		Phase:    phase,
		Message:  fmt.Sprintf("attempt exceeded its %v budget during %s", budget, phase),
		Cause:    context.DeadlineExceeded,
	}
}

// RecognitionFailed reports an engine error during recognition.
func RecognitionFailed(strategy string, cause error) *Error {
	return &Error{
		Kind:     KindRecognitionFailed,
		Reason:   ReasonEngine,
		Strategy: strategy,
		Phase:    PhaseRecognize,
		Message:  "engine failed to recognize the image",
		Cause:    cause,
	}
}

// EmptyResult reports a recognition that produced no text.
func EmptyResult(strategy string) *Error {
	return &Error{
		Kind:     KindEmptyResult,
		Reason:   ReasonEngine,
		Strategy: strategy,
		Phase:    PhaseRecognize,
		Message:  "no text recognized",
	}
}

// CleanupFailed reports a failed engine release. It is logged, never returned.
func CleanupFailed(strategy string, cause error) *Error {
	return &Error{
		Kind:     KindCleanupFailed,
		Reason:   ReasonEngine,
		Strategy: strategy,
		Phase:    PhaseRelease,
		Message:  "engine release failed",
		Cause:    cause,
	}
}

// Canceled reports a request abandoned by its caller.
func Canceled(strategy, phase string, cause error) *Error {
	return &Error{
		Kind:     KindCanceled,
		Reason:   ReasonUnknown,
		Strategy: strategy,
		Phase:    phase,
		Message:  "recognition canceled by caller",
		Cause:    cause,
	}
}

// Exhausted aggregates per-attempt failures. The most specific attempt,
// ranked by Reason, becomes the cause and drives the message.
func Exhausted(attempts []*Error) *Error {
	e := &Error{
		Kind:     KindAllStrategiesExhausted,
		Reason:   ReasonUnknown,
		Attempts: attempts,
	}
	primary := MostSpecific(attempts)
	if primary == nil {
		e.Message = "no recognition strategy was configured"
		return e
	}
	e.Reason = primary.Reason
	e.Cause = primary
	e.Message = fmt.Sprintf("all %d recognition strategies failed: %s", len(attempts), reasonSummary(primary.Reason))
	return e
}

// MostSpecific returns the first attempt with the best-ranked reason.
func MostSpecific(attempts []*Error) *Error {
	var best *Error
	for _, a := range attempts {
		if a == nil {
			continue
		}
		if best == nil || reasonRank[a.Reason] < reasonRank[best.Reason] {
			best = a
		}
	}
	return best
}

func reasonSummary(r Reason) string {
	switch r {
	case ReasonNetwork:
		return "language data could not be downloaded, check the network connection"
	case ReasonUnsupportedEnvironment:
		return "the recognition engine is not supported in this environment"
	case ReasonTimeout:
		return "recognition timed out"
	case ReasonInput:
		return "the image could not be processed"
	case ReasonEngine:
		return "the recognition engine failed"
	}
	return "unknown failure"
}

// UserMessage returns the single human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason recorded on err, classifying plain errors.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return Classify(err)
}

type networkError struct {
	err error
}

func (n *networkError) Error() string { return n.err.Error() }
func (n *networkError) Unwrap() error { return n.err }

// Network marks err as a network failure.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return &networkError{err: err}
}

// Classify derives a Reason from an arbitrary error chain.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	var ne *networkError
	if errors.As(err, &ne) {
		return ReasonNetwork
	}
	if errors.Is(err, ErrEngineUnavailable) {
		return ReasonUnsupportedEnvironment
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ReasonNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonNetwork
	}
	return ReasonUnknown
}
