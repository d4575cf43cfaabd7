package domain

import (
	"fmt"
	"testing"
)

func TestReturnReason_Mapping(t *testing.T) {
	tests := []struct {
		err        error
		name       string
		wantNil    bool
		wantKind   ReasonKind
		wantRetry  int64
	}{
		{name: "nil error", err: nil, wantNil: true},
		{name: "rate limit", err: &TooManyRequestError{RetryAfter: 120}, wantKind: ReasonExhausted, wantRetry: 120},
		{name: "exhausted", err: &ExhaustedCookieError{RetryAfter: 3600}, wantKind: ReasonExhausted, wantRetry: 3600},
		{name: "invalid cookie", err: &InvalidCookieError{Reason: InvalidReason("bad token")}, wantKind: ReasonInvalid},
		{name: "generic upstream", err: &UpstreamError{Status: 500}, wantNil: true},
		{name: "validation", err: ErrWrongCompletionFormat, wantNil: true},
		{name: "wrapped rate limit", err: fmt.Errorf("request failed: %w", &TooManyRequestError{RetryAfter: 60}), wantKind: ReasonExhausted, wantRetry: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReturnReason(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Expected nil reason, got %s", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected a reason, got nil")
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Expected kind %v, got %v", tt.wantKind, got.Kind)
			}
			if tt.wantRetry != 0 && got.RetryAfter != tt.wantRetry {
				t.Errorf("Expected retry after %d, got %d", tt.wantRetry, got.RetryAfter)
			}
		})
	}
}
