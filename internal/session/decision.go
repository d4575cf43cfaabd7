package session

import (
	"github.com/seawire/vela/internal/core/domain"
)

// Inputs is everything the renewal engine looks at for one request.
type Inputs struct {
	Current          []domain.Message
	Previous         []domain.Message
	PrevImpersonated bool
	HasConversation  bool
	CharBound        bool
	RenewAlways      bool
	RetryRegenerate  bool
}

// Decision is the engine's verdict plus the intermediate predicates, kept
// visible so callers can log and branch on them.
type Decision struct {
	SamePrompts      bool
	SameCharDiffChat bool
	ShouldRenew      bool
	RetryRegen       bool
	Strategy         domain.RetryStrategy
}

// Decide classifies the incoming message list against the previous request:
// an exact resubmission, the same persona in a fresh chat, or a genuinely
// new exchange. Each case maps to a different conversation strategy.
func Decide(in Inputs) Decision {
	var d Decision
	d.SamePrompts = SamePrompts(in.Current, in.Previous)
	d.SameCharDiffChat = !d.SamePrompts && sameCharDiffChat(in.Current, in.Previous)
	d.ShouldRenew = in.RenewAlways ||
		!in.HasConversation ||
		in.PrevImpersonated ||
		(d.SamePrompts && !in.RenewAlways) ||
		d.SameCharDiffChat
	d.RetryRegen = in.RetryRegenerate && d.SamePrompts && in.CharBound

	switch {
	case d.RetryRegen:
		d.Strategy = domain.StrategyRetryRegen
	case !d.ShouldRenew && in.HasConversation:
		d.Strategy = domain.StrategyCurrentContinue
	default:
		d.Strategy = domain.StrategyRenew
	}
	return d
}

// SamePrompts reports whether two message lists are structurally equal when
// system messages are dropped and ordering is ignored.
func SamePrompts(a, b []domain.Message) bool {
	sa := domain.SortMessages(withoutSystem(a))
	sb := domain.SortMessages(withoutSystem(b))
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if !sa[i].Equal(sb[i]) {
			return false
		}
	}
	return true
}

// sameCharDiffChat holds when the leading system and user turns are unchanged
// even though the conversation body differs: same persona, new chat.
func sameCharDiffChat(current, previous []domain.Message) bool {
	cg := domain.FindPrompts(current)
	pg := domain.FindPrompts(previous)
	return contentMatches(cg.FirstSystem, pg.FirstSystem) &&
		contentMatches(cg.FirstUser, pg.FirstUser)
}

func contentMatches(a, b *domain.Message) bool {
	ca, okA := domain.ContentOf(a)
	cb, okB := domain.ContentOf(b)
	return okA == okB && ca == cb
}

func withoutSystem(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
