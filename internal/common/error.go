package common

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFoundError = fmt.Errorf("file not found")

	ErrExtractionFailure   = fmt.Errorf("cannot extract formats")
	ErrNoFormats           = fmt.Errorf("no usable formats found")
	ErrSessionExpired      = fmt.Errorf("session expired")
	ErrUnauthorized        = fmt.Errorf("not your request")
	ErrConcurrency         = fmt.Errorf("too many concurrent downloads")
	ErrIllegalTransition   = fmt.Errorf("illegal session transition")
	ErrDownloadTransient   = fmt.Errorf("download interrupted")
	ErrDownloadFatal       = fmt.Errorf("download failed")
	ErrFileMissing         = fmt.Errorf("file not found after download")
	ErrDeliveryFailed      = fmt.Errorf("delivery failed")
	ErrRangeNotSatisfiable = fmt.Errorf("range not satisfiable")
	ErrPayloadTooLong      = fmt.Errorf("callback payload too long")
	ErrBadPayload          = fmt.Errorf("malformed callback payload")
	ErrPoolBusy            = fmt.Errorf("too many queued jobs, try again later")
)

const maxUserMessage = 200

// Kind is the error class shown to the user.
type Kind int

const (
	KindUnknown Kind = iota
	KindExtraction
	KindSessionExpired
	KindUnauthorized
	KindConcurrency
	KindTransient
	KindFatal
	KindFileMissing
)

func (k Kind) String() string {
	return [...]string{"Unknown", "Extraction", "SessionExpired", "Unauthorized", "Concurrency", "Transient", "Fatal", "FileMissing"}[k]
}

// Retryable reports whether the session must be kept for a retry.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindFatal
}

// Classify maps an error onto the user-visible taxonomy. Delivery failures
// fold into Fatal because the file and working directory are still present.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrExtractionFailure), errors.Is(err, ErrNoFormats):
		return KindExtraction
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConcurrency):
		return KindConcurrency
	case errors.Is(err, ErrFileMissing):
		return KindFileMissing
	case errors.Is(err, ErrDownloadTransient):
		return KindTransient
	default:
		return KindFatal
	}
}

// UserMessage renders err for chat output, cut to a fixed number of runes.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	r := []rune(err.Error())
	if len(r) > maxUserMessage {
		r = r[:maxUserMessage]
	}

	return string(r)
}
