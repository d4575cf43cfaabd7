package domain

import (
	"fmt"
	"time"
)

// ReasonKind classifies why a cookie is being returned unhealthy
type ReasonKind int

const (
	// ReasonExhausted - usage limit hit, cookie usable again after RetryAfter
	ReasonExhausted ReasonKind = iota
	// ReasonInvalid - cookie rejected by upstream, evict it
	ReasonInvalid
	// ReasonRestricted - account restricted until a given time
	ReasonRestricted
)

// Reason is the health signal attached to a cookie return. A nil *Reason
// means the cookie is healthy and can be reused immediately.
type Reason struct {
	Kind       ReasonKind
	RetryAfter int64 // seconds, for ReasonExhausted
	Until      time.Time
	Message    string
}

func ExhaustedReason(retryAfter int64) *Reason {
	return &Reason{Kind: ReasonExhausted, RetryAfter: retryAfter}
}

func InvalidReason(message string) *Reason {
	return &Reason{Kind: ReasonInvalid, Message: message}
}

func RestrictedReason(until time.Time) *Reason {
	return &Reason{Kind: ReasonRestricted, Until: until}
}

func (r *Reason) String() string {
	if r == nil {
		return "healthy"
	}
	switch r.Kind {
	case ReasonExhausted:
		return fmt.Sprintf("exhausted (retry after %ds)", r.RetryAfter)
	case ReasonInvalid:
		if r.Message != "" {
			return fmt.Sprintf("invalid: %s", r.Message)
		}
		return "invalid"
	case ReasonRestricted:
		return fmt.Sprintf("restricted until %s", r.Until.Format(time.RFC3339))
	default:
		return "unknown"
	}
}
