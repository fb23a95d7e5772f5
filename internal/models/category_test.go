package models

import "testing"

func TestHighConfidenceIsStrict(t *testing.T) {
	cls := &Classification{
		Primary: CategorySalesLead,
		Scores: []CategoryScore{
			{Category: CategorySalesLead, Confidence: 0.8},
			{Category: CategorySupplier, Confidence: 0.81},
			{Category: CategoryStaff, Confidence: 0.2},
		},
	}
	got := cls.HighConfidence(0.8)
	if len(got) != 1 || got[0] != CategorySupplier {
		t.Fatalf("expected only the strictly-above score, got %v", got)
	}
}

func TestClassificationValidate(t *testing.T) {
	valid := &Classification{
		Primary: CategoryCarrier,
		Scores:  []CategoryScore{{Category: CategoryCarrier, Confidence: 0.9}},
	}
	if !valid.Validate() {
		t.Fatal("expected a well-formed classification to validate")
	}

	badCategory := &Classification{
		Primary: Category("NOPE"),
		Scores:  []CategoryScore{{Category: CategoryCarrier, Confidence: 0.9}},
	}
	if badCategory.Validate() {
		t.Fatal("expected an unknown primary to fail validation")
	}

	badConfidence := &Classification{
		Primary: CategoryCarrier,
		Scores:  []CategoryScore{{Category: CategoryCarrier, Confidence: 1.2}},
	}
	if badConfidence.Validate() {
		t.Fatal("expected an out-of-range confidence to fail validation")
	}
}

func TestSessionReset(t *testing.T) {
	s := NewSession("id")
	s.Transcript = []Message{NewUserMessage("hi")}
	s.State = "SOME_STATE"
	s.Scratch["k"] = "v"
	s.Profile["name"] = "Pablo"
	s.Deleted = true

	s.Reset()
	if len(s.Transcript) != 0 || s.State != "" || len(s.Scratch) != 0 || s.Deleted {
		t.Fatal("expected reset to clear conversation state")
	}
	if s.Profile["name"] != "Pablo" {
		t.Fatal("expected the profile to survive a reset")
	}
}

func TestUserMessageCount(t *testing.T) {
	s := NewSession("id")
	s.Transcript = []Message{
		NewUserMessage("one"),
		NewModelMessage("reply"),
		NewUserMessage("two"),
	}
	if got := s.UserMessageCount(); got != 2 {
		t.Fatalf("expected 2 user messages, got %d", got)
	}
}
