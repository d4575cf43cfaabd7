package constants

const (
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	HeaderAPIKey      = "x-api-key"
	HeaderXRequestID  = "X-Request-ID"
	HeaderCookie      = "Cookie"
	HeaderSetCookie   = "Set-Cookie"
	HeaderOrigin      = "Origin"
	HeaderReferer     = "Referer"
	HeaderUserAgent   = "User-Agent"
	HeaderRetryAfter  = "Retry-After"

	ContentTypeJSON        = "application/json"
	ContentTypeText        = "text/plain"
	ContentTypeEventStream = "text/event-stream"
)
