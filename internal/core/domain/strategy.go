package domain

// RetryStrategy is the decision the renewal engine makes about how a request
// maps onto upstream conversations.
type RetryStrategy int

const (
	// StrategyApi bypasses conversation reuse entirely
	StrategyApi RetryStrategy = iota
	// StrategyRenew deletes any live conversation and creates a fresh one
	StrategyRenew
	// StrategyRetryRegen asks the upstream to regenerate the last turn
	StrategyRetryRegen
	// StrategyCurrentRenew renews within the current conversation
	StrategyCurrentRenew
	// StrategyCurrentContinue continues the current conversation as-is
	StrategyCurrentContinue
)

// IsCurrent reports whether the strategy operates on the live conversation
// instead of replacing it.
func (s RetryStrategy) IsCurrent() bool {
	return s == StrategyCurrentRenew || s == StrategyCurrentContinue
}

func (s RetryStrategy) String() string {
	switch s {
	case StrategyApi:
		return "api"
	case StrategyRenew:
		return "renew"
	case StrategyRetryRegen:
		return "retry-regen"
	case StrategyCurrentRenew:
		return "current-renew"
	case StrategyCurrentContinue:
		return "current-continue"
	default:
		return "unknown"
	}
}
