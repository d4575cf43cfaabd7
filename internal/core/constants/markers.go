package constants

// Control markers scanned out of the assembled prompt text. These are
// literal substrings that prompt templates embed to toggle behaviour.
const (
	MarkerCompleteAPI = "<|completeAPI|>"
	MarkerMessagesAPI = "<|messagesAPI|>"
	MarkerMessagesLog = "<|messagesLog|>"
	MarkerFusionMode  = "<|Fusion Mode|>"
)
