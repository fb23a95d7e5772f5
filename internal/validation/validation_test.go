package validation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/andestrans/cargobot/internal/llm"
)

func TestNormalizeStripsAccentsAndCase(t *testing.T) {
	cases := map[string]string{
		"  Bogotá ":      "bogota",
		"PUERTO NARIÑO":  "puerto narino",
		"Mitú":           "mitu",
		"san andres":     "san andres",
		"Última Milla":   "ultima milla",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateGoodsRejectsForbiddenCargo(t *testing.T) {
	msg, ok := ValidateGoods("live animals for a farm")
	if ok {
		t.Fatal("expected rejection for live animals")
	}
	if msg != fmt.Sprintf(MsgGoodsNotTransported, "live animals for a farm") {
		t.Fatalf("unexpected rejection message: %q", msg)
	}

	if msg, ok := ValidateGoods("ultima milla en Bogotá"); ok || msg != MsgLastMileNotOffered {
		t.Fatalf("expected last-mile rejection, got ok=%v msg=%q", ok, msg)
	}

	if msg, ok := ValidateGoods("palletized textiles"); !ok || msg != "" {
		t.Fatalf("expected textiles to pass, got ok=%v msg=%q", ok, msg)
	}
}

func TestValidateCityUsesNormalizedLookup(t *testing.T) {
	msg, ok := ValidateCity("Mitú")
	if ok {
		t.Fatal("expected rejection for a blacklisted city")
	}
	if !strings.Contains(msg, "Mitú") {
		t.Fatalf("expected the city name in the message, got %q", msg)
	}

	if _, ok := ValidateCity("Bogotá"); !ok {
		t.Fatal("expected a covered city to pass")
	}
}

func TestTerminalRejectionPriority(t *testing.T) {
	result := &llm.LoopResult{
		Results: map[string]any{
			ToolValidateCity:    "city rejected",
			ToolIsInternational: MsgInternationalLimit,
			ToolValidateGoods:   true,
		},
	}
	msg, tool := TerminalRejection(result)
	if tool != ToolIsInternational {
		t.Fatalf("expected international rejection to win, got %q", tool)
	}
	if msg != MsgInternationalLimit {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestTerminalRejectionIgnoresPassingTools(t *testing.T) {
	result := &llm.LoopResult{
		Results: map[string]any{
			ToolValidateGoods:   true,
			ToolValidateCity:    true,
			ToolIsParcelRequest: true,
		},
	}
	if msg, tool := TerminalRejection(result); msg != "" || tool != "" {
		t.Fatalf("expected no rejection, got msg=%q tool=%q", msg, tool)
	}
}
