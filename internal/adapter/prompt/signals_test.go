package prompt

import (
	"reflect"
	"testing"
)

func TestExtractSignals_LegacyModel(t *testing.T) {
	tests := []struct {
		model  string
		legacy bool
	}{
		{"claude-2.1", true},
		{"claude-instant-1.2", true},
		{"CLAUDE-2", true},
		{"claude-3-5-sonnet-20241022", false},
		{"gpt-4", false},
	}
	for _, tt := range tests {
		got := ExtractSignals("", tt.model)
		if got.Legacy != tt.legacy {
			t.Errorf("model %s: expected legacy=%v, got %v", tt.model, tt.legacy, got.Legacy)
		}
	}
}

func TestExtractSignals_MessagesAPI(t *testing.T) {
	// plain prompt on a modern model defaults to the messages API
	s := ExtractSignals("Human: hi", "claude-3-5-sonnet-20241022")
	if !s.MessagesAPI {
		t.Error("Expected messages API by default")
	}

	// completeAPI marker opts out, case-insensitively
	s = ExtractSignals("<|COMPLETEapi|> Human: hi", "claude-3-5-sonnet-20241022")
	if s.MessagesAPI {
		t.Error("Expected completeAPI marker to disable messages API")
	}

	// messagesAPI marker forces it back on even for legacy models
	s = ExtractSignals("<|messagesAPI|> Human: hi", "claude-2")
	if !s.MessagesAPI {
		t.Error("Expected messagesAPI marker to force messages API")
	}
}

func TestExtractSignals_Fusion(t *testing.T) {
	s := ExtractSignals("<|Fusion Mode|>", "claude-3-5-sonnet-20241022")
	if !s.Fusion {
		t.Error("Expected fusion with messages API active")
	}

	// fusion requires the messages API
	s = ExtractSignals("<|completeAPI|><|Fusion Mode|>", "claude-3-5-sonnet-20241022")
	if s.Fusion {
		t.Error("Expected fusion off when messages API is off")
	}
}

func TestExtractSignals_SecondStopSetOccurrenceWins(t *testing.T) {
	prompt := `<|stopSet ["default"]|> middle <|stopSet ["a","b"]|>`
	s := ExtractSignals(prompt, "claude-3-5-sonnet-20241022")

	if !reflect.DeepEqual(s.StopSet, []string{"a", "b"}) {
		t.Errorf("Expected second occurrence payload [a b], got %v", s.StopSet)
	}
}

func TestExtractSignals_SingleStopSetIgnored(t *testing.T) {
	prompt := `<|stopSet ["only"]|>`
	s := ExtractSignals(prompt, "claude-3-5-sonnet-20241022")

	if len(s.StopSet) != 0 {
		t.Errorf("Expected a lone stopSet to be treated as the template default, got %v", s.StopSet)
	}
}

func TestExtractSignals_MalformedStopSet(t *testing.T) {
	prompt := `<|stopSet [bad]|> and <|stopSet [worse]|>`
	s := ExtractSignals(prompt, "claude-3-5-sonnet-20241022")

	if len(s.StopSet) != 0 {
		t.Errorf("Expected malformed payload to yield empty list, got %v", s.StopSet)
	}
}

func TestAssembleStopSequences(t *testing.T) {
	signals := Signals{
		StopSet:    []string{"Human:"},
		StopRevoke: []string{"END"},
	}
	got := AssembleStopSequences(signals, []string{"END", "human:"})

	// "END" is revoked; "human:" survives because revocation checks the
	// literal revoke list only
	want := []string{"Human:", "human:", "\n\nHuman:", "\n\nAssistant:"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestAssembleStopSequences_DropsEmptiesKeepsDuplicates(t *testing.T) {
	got := AssembleStopSequences(Signals{}, []string{"  ", "", "\n\nHuman:"})

	want := []string{"\n\nHuman:", "\n\nHuman:", "\n\nAssistant:"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected duplicates preserved, got %q", got)
	}
}

func TestAssembleStopSequences_RevokeIsCaseInsensitive(t *testing.T) {
	signals := Signals{StopRevoke: []string{"\n\nhuman:"}}
	got := AssembleStopSequences(signals, nil)

	// the default "\n\nHuman:" trims to "Human:", which does not equal the
	// untrimmed revoke entry; revoke comparisons run on trimmed candidates
	want := []string{"\n\nHuman:", "\n\nAssistant:"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}

	signals = Signals{StopRevoke: []string{"human:"}}
	got = AssembleStopSequences(signals, nil)
	want = []string{"\n\nAssistant:"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected trimmed default revoked case-insensitively, got %q", got)
	}
}
