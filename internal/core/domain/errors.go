package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidKey - no organisation id could be resolved for the request,
	// either because the cookie pool is exhausted or auth never completed
	ErrNoValidKey = errors.New("no valid session available")

	// ErrWrongCompletionFormat - the client sent an empty message list
	ErrWrongCompletionFormat = errors.New("completion request has no messages")
)

type InvalidModelError struct {
	Model string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("model %q is not in the upstream model list", e.Model)
}

type TooManyRequestError struct {
	RetryAfter int64
}

func (e *TooManyRequestError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %ds", e.RetryAfter)
}

type ExhaustedCookieError struct {
	RetryAfter int64
}

func (e *ExhaustedCookieError) Error() string {
	return fmt.Sprintf("session usage exhausted, resets in %ds", e.RetryAfter)
}

type InvalidCookieError struct {
	Reason *Reason
}

func (e *InvalidCookieError) Error() string {
	return fmt.Sprintf("session cookie rejected: %s", e.Reason)
}

type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream returned HTTP %d", e.Status)
}

// ReturnReason maps a request outcome onto the cookie-health signal sent back
// to the pool. nil means the cookie is healthy; validation errors and plain
// upstream failures do not penalise the cookie.
func ReturnReason(err error) *Reason {
	if err == nil {
		return nil
	}
	var tooMany *TooManyRequestError
	if errors.As(err, &tooMany) {
		return ExhaustedReason(tooMany.RetryAfter)
	}
	var exhausted *ExhaustedCookieError
	if errors.As(err, &exhausted) {
		return ExhaustedReason(exhausted.RetryAfter)
	}
	var invalid *InvalidCookieError
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	return nil
}
