package domain

import "sort"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// NewChatSentinel is the system-message content claude.ai front-ends inject
// when the user starts a fresh chat; prompt grouping ignores it.
const NewChatSentinel = "[Start a new chat]"

// Message is one entry of a client message array. The optional flags are
// tri-state: absent, false and true are all distinct for ordering purposes.
type Message struct {
	Role        Role    `json:"role"`
	Content     string  `json:"content"`
	Name        *string `json:"name,omitempty"`
	Customname  *bool   `json:"customname,omitempty"`
	Strip       *bool   `json:"strip,omitempty"`
	Jailbreak   *bool   `json:"jailbreak,omitempty"`
	Main        *bool   `json:"main,omitempty"`
	Discard     *bool   `json:"discard,omitempty"`
	Merged      *bool   `json:"merged,omitempty"`
	Personality *bool   `json:"personality,omitempty"`
	Scenario    *bool   `json:"scenario,omitempty"`
}

// Compare defines a total order over (role, content, name, flags) so message
// lists can be sorted and compared structurally.
func (m Message) Compare(o Message) int {
	if c := compareString(string(m.Role), string(o.Role)); c != 0 {
		return c
	}
	if c := compareString(m.Content, o.Content); c != 0 {
		return c
	}
	if c := compareStringPtr(m.Name, o.Name); c != 0 {
		return c
	}
	mf := m.flagTuple()
	of := o.flagTuple()
	for i := range mf {
		if mf[i] != of[i] {
			return int(mf[i]) - int(of[i])
		}
	}
	return 0
}

func (m Message) Equal(o Message) bool {
	return m.Compare(o) == 0
}

// flagTuple encodes each optional flag as 0 (absent), 1 (false) or 2 (true)
func (m Message) flagTuple() [8]byte {
	flags := [8]*bool{
		m.Customname, m.Strip, m.Jailbreak, m.Main,
		m.Discard, m.Merged, m.Personality, m.Scenario,
	}
	var out [8]byte
	for i, f := range flags {
		switch {
		case f == nil:
			out[i] = 0
		case !*f:
			out[i] = 1
		default:
			out[i] = 2
		}
	}
	return out
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStringPtr(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return compareString(*a, *b)
	}
}

// SortMessages sorts a copy of the given messages by the total order
func SortMessages(msgs []Message) []Message {
	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	return sorted
}

// PromptsGroup is a non-owning view over a message list: the first and last
// message of each role, with system matches excluding the new-chat sentinel.
// Recomputed per request, never persisted.
type PromptsGroup struct {
	FirstUser      *Message
	FirstSystem    *Message
	FirstAssistant *Message
	LastUser       *Message
	LastSystem     *Message
	LastAssistant  *Message
}

// FindPrompts builds the PromptsGroup view for a message list
func FindPrompts(messages []Message) PromptsGroup {
	var g PromptsGroup
	for i := range messages {
		m := &messages[i]
		switch {
		case m.Role == RoleUser:
			if g.FirstUser == nil {
				g.FirstUser = m
			}
			g.LastUser = m
		case m.Role == RoleAssistant:
			if g.FirstAssistant == nil {
				g.FirstAssistant = m
			}
			g.LastAssistant = m
		case m.Role == RoleSystem && m.Content != NewChatSentinel:
			if g.FirstSystem == nil {
				g.FirstSystem = m
			}
			g.LastSystem = m
		}
	}
	return g
}

// ContentOf returns the content of a possibly-nil message reference
func ContentOf(m *Message) (string, bool) {
	if m == nil {
		return "", false
	}
	return m.Content, true
}
