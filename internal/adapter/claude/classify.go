package claude

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/seawire/vela/internal/core/constants"
	"github.com/seawire/vela/internal/core/domain"
)

const (
	maxErrorBodyBytes = 64 << 10
	maxDetailLen      = 200

	defaultRetryAfterSeconds = 60
)

// readAndClose consumes a response body, classifying non-success statuses
// into the error taxonomy before handing the body back.
func readAndClose(res *http.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(res.StatusCode, res.Header, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyResponse checks a response without consuming a successful body,
// so streaming responses stay live. Error bodies are read and closed here.
func classifyResponse(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	return classifyStatus(res.StatusCode, res.Header, body)
}

func drainAndClose(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBodyBytes))
	_ = res.Body.Close()
}

// classifyStatus maps an upstream failure onto the closed error taxonomy.
// claude.ai reports usage exhaustion as a 429 whose error.message is itself
// a JSON document carrying a resetsAt epoch.
func classifyStatus(status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	errType := gjson.GetBytes(body, "error.type").String()
	errMessage := gjson.GetBytes(body, "error.message").String()

	switch status {
	case http.StatusTooManyRequests:
		if resetsAt := nestedResetsAt(body, errMessage); resetsAt > 0 {
			retryAfter := resetsAt - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			return &domain.ExhaustedCookieError{RetryAfter: retryAfter}
		}
		return &domain.TooManyRequestError{RetryAfter: retryAfterFrom(header)}
	case http.StatusUnauthorized, http.StatusForbidden:
		msg := errMessage
		if msg == "" {
			msg = errType
		}
		return &domain.InvalidCookieError{Reason: domain.InvalidReason(msg)}
	}

	detail := errMessage
	if detail == "" {
		detail = string(body)
	}
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}
	return &domain.UpstreamError{Status: status, Detail: detail}
}

// nestedResetsAt digs the reset timestamp out of either the body or the
// JSON-in-a-string error.message claude.ai uses for usage limits
func nestedResetsAt(body []byte, errMessage string) int64 {
	if v := gjson.GetBytes(body, "error.resetsAt"); v.Exists() {
		return v.Int()
	}
	if errMessage != "" {
		if v := gjson.Get(errMessage, "resetsAt"); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func retryAfterFrom(header http.Header) int64 {
	if raw := header.Get(constants.HeaderRetryAfter); raw != "" {
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil && seconds >= 0 {
			return seconds
		}
	}
	return defaultRetryAfterSeconds
}
