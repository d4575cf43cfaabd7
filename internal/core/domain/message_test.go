package domain

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestMessageCompare_FlagTriState(t *testing.T) {
	absent := Message{Role: RoleUser, Content: "hello"}
	explicitFalse := Message{Role: RoleUser, Content: "hello", Main: boolPtr(false)}
	explicitTrue := Message{Role: RoleUser, Content: "hello", Main: boolPtr(true)}

	if absent.Compare(explicitFalse) >= 0 {
		t.Error("Expected absent flag to order before explicit false")
	}
	if explicitFalse.Compare(explicitTrue) >= 0 {
		t.Error("Expected explicit false to order before explicit true")
	}
	if !absent.Equal(absent) {
		t.Error("Expected message to equal itself")
	}
}

func TestMessageCompare_RoleThenContent(t *testing.T) {
	a := Message{Role: RoleAssistant, Content: "z"}
	u := Message{Role: RoleUser, Content: "a"}
	if a.Compare(u) >= 0 {
		t.Errorf("Expected assistant role to sort before user role")
	}

	u1 := Message{Role: RoleUser, Content: "alpha"}
	u2 := Message{Role: RoleUser, Content: "beta"}
	if u1.Compare(u2) >= 0 {
		t.Errorf("Expected content to break role ties")
	}
}

func TestSortMessages_DoesNotMutateInput(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "b"},
		{Role: RoleUser, Content: "a"},
	}
	sorted := SortMessages(msgs)

	if msgs[0].Content != "b" {
		t.Error("Expected input slice to be untouched")
	}
	if sorted[0].Content != "a" || sorted[1].Content != "b" {
		t.Errorf("Expected sorted order [a b], got [%s %s]", sorted[0].Content, sorted[1].Content)
	}
}

func TestFindPrompts_SkipsNewChatSentinel(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: NewChatSentinel},
		{Role: RoleSystem, Content: "You are a pirate."},
		{Role: RoleUser, Content: "ahoy"},
		{Role: RoleAssistant, Content: "ahoy yourself"},
		{Role: RoleUser, Content: "and again"},
	}
	g := FindPrompts(msgs)

	if g.FirstSystem == nil || g.FirstSystem.Content != "You are a pirate." {
		t.Errorf("Expected first system to skip sentinel, got %+v", g.FirstSystem)
	}
	if g.FirstUser == nil || g.FirstUser.Content != "ahoy" {
		t.Errorf("Expected first user 'ahoy', got %+v", g.FirstUser)
	}
	if g.LastUser == nil || g.LastUser.Content != "and again" {
		t.Errorf("Expected last user 'and again', got %+v", g.LastUser)
	}
	if g.LastAssistant == nil || g.LastAssistant.Content != "ahoy yourself" {
		t.Errorf("Expected last assistant set, got %+v", g.LastAssistant)
	}
}

func TestFindPrompts_EmptyList(t *testing.T) {
	g := FindPrompts(nil)
	if g.FirstUser != nil || g.FirstSystem != nil || g.LastAssistant != nil {
		t.Error("Expected all views nil for empty list")
	}
}
