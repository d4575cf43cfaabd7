package prompt

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Signals is the typed result of the one post-assembly scan over the
// rendered prompt text. All downstream mode switching keys off this struct
// instead of re-matching patterns.
type Signals struct {
	Legacy      bool
	MessagesAPI bool
	MessagesLog bool
	Fusion      bool
	StopSet     []string
	StopRevoke  []string
}

var (
	legacyModelRe = regexp.MustCompile(`(?i)claude-(1|2|instant)`)
	completeAPIRe = regexp.MustCompile(`(?i)<\|completeAPI\|>`)
	messagesAPIRe = regexp.MustCompile(`<\|messagesAPI\|>`)
	messagesLogRe = regexp.MustCompile(`<\|messagesLog\|>`)
	fusionModeRe  = regexp.MustCompile(`<\|Fusion Mode\|>`)
	stopSetRe     = regexp.MustCompile(`<\|stopSet *(\[.*?\]) *\|>`)
	stopRevokeRe  = regexp.MustCompile(`<\|stopRevoke *(\[.*?\]) *\|>`)
)

// ExtractSignals scans the assembled prompt for control markers
func ExtractSignals(prompt, model string) Signals {
	legacy := legacyModelRe.MatchString(model)
	messagesAPI := !(legacy || completeAPIRe.MatchString(prompt)) || messagesAPIRe.MatchString(prompt)

	return Signals{
		Legacy:      legacy,
		MessagesAPI: messagesAPI,
		MessagesLog: messagesLogRe.MatchString(prompt),
		Fusion:      messagesAPI && fusionModeRe.MatchString(prompt),
		StopSet:     secondMarkerPayload(stopSetRe, prompt),
		StopRevoke:  secondMarkerPayload(stopRevokeRe, prompt),
	}
}

// secondMarkerPayload parses the SECOND occurrence of a stop marker. The
// first occurrence belongs to the template's default block; only the
// override block counts.
func secondMarkerPayload(re *regexp.Regexp, prompt string) []string {
	matches := re.FindAllStringSubmatch(prompt, 2)
	if len(matches) < 2 {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(matches[1][1]), &out); err != nil {
		return nil
	}
	return out
}

// AssembleStopSequences builds the final stop list: template overrides,
// then the client's list, then the hard defaults. Entries are filtered by
// trimming (empties dropped) and by case-insensitive membership in the
// revoke list; surviving entries keep their original spelling and order,
// and duplicates are not collapsed.
func AssembleStopSequences(signals Signals, clientStops []string) []string {
	candidates := make([]string, 0, len(signals.StopSet)+len(clientStops)+2)
	candidates = append(candidates, signals.StopSet...)
	candidates = append(candidates, clientStops...)
	candidates = append(candidates, "\n\nHuman:", "\n\nAssistant:")

	out := make([]string, 0, len(candidates))
	for _, s := range candidates {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		if revoked(signals.StopRevoke, trimmed) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func revoked(revoke []string, trimmed string) bool {
	for _, r := range revoke {
		if strings.EqualFold(r, trimmed) {
			return true
		}
	}
	return false
}
