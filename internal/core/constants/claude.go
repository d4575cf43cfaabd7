package constants

// Upstream claude.ai wire constants
const (
	DefaultUpstreamEndpoint = "https://claude.ai"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	DefaultTimezone = "America/New_York"

	RenderingModeMessages = "messages"
	PaprikaModeExtended   = "extended"

	AttachmentFileName = "paste.txt"
	AttachmentFileType = "txt"
)
