package models

// Category is a business vertical the classifier can route a session to.
type Category string

const (
	CategorySalesLead        Category = "SALES_LEAD"
	CategoryActiveCustomer   Category = "ACTIVE_CUSTOMER"
	CategoryCarrier          Category = "THIRD_PARTY_CARRIER"
	CategorySupplier         Category = "SUPPLIER"
	CategoryStaff            Category = "STAFF"
	CategoryJobCandidate     Category = "JOB_CANDIDATE"
	CategoryGeneralAssistant Category = "GENERAL_ASSISTANT"
	CategoryOther            Category = "OTHER"
)

// ClassifiableCategories is the fixed set the classifier scores. OTHER and
// GENERAL_ASSISTANT are never scored: OTHER is the ambiguity outcome and the
// assistant is routed by deployment mode, not by classification.
var ClassifiableCategories = []Category{
	CategorySalesLead,
	CategoryActiveCustomer,
	CategoryCarrier,
	CategorySupplier,
	CategoryStaff,
	CategoryJobCandidate,
}

func (c Category) Valid() bool {
	switch c {
	case CategorySalesLead, CategoryActiveCustomer, CategoryCarrier,
		CategorySupplier, CategoryStaff, CategoryJobCandidate,
		CategoryGeneralAssistant, CategoryOther:
		return true
	}
	return false
}

// Global states shared by all conversation flows.
const (
	StateAwaitingReclassification = "AWAITING_RECLASSIFICATION"
	StateConversationFinished     = "CONVERSATION_FINISHED"
	StateHumanEscalation          = "HUMAN_ESCALATION"
)

func IsGlobalState(state string) bool {
	switch state {
	case StateAwaitingReclassification, StateConversationFinished, StateHumanEscalation:
		return true
	}
	return false
}

// CategoryScore is one entry of a classification result.
type CategoryScore struct {
	Category      Category `json:"category"`
	Confidence    float64  `json:"confidence"`
	Rationale     string   `json:"rationale"`
	KeyIndicators []string `json:"keyIndicators,omitempty"`
}

// Classification is the full scoring the model returns for a session. It is
// ephemeral: produced and consumed within one orchestration pass, with only
// the adopted category cached onto scratch.
type Classification struct {
	Scores       []CategoryScore `json:"categoryScores"`
	Primary      Category        `json:"primaryCategory"`
	Alternatives []Category      `json:"alternativeCategories,omitempty"`
}

// HighConfidence returns the categories scored strictly above threshold.
func (c *Classification) HighConfidence(threshold float64) []Category {
	var out []Category
	for _, s := range c.Scores {
		if s.Confidence > threshold {
			out = append(out, s.Category)
		}
	}
	return out
}

// Validate enforces the structural schema: a known primary category and every
// score naming a known category with confidence in [0,1].
func (c *Classification) Validate() bool {
	if !c.Primary.Valid() {
		return false
	}
	for _, s := range c.Scores {
		if !s.Category.Valid() || s.Confidence < 0 || s.Confidence > 1 {
			return false
		}
	}
	return true
}
