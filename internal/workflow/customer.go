package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Active-customer vertical: route an existing customer's request to the
// right canned resolution, or back into the sales flow for new quotes.

const (
	StateCustomerAwaitingTaxID      = "AWAITING_TAX_ID"
	StateCustomerAwaitingResolution = "AWAITING_RESOLUTION"
)

const sheetActiveCustomers = "ACTIVE_CUSTOMERS"

const customerPrompt = "You assist existing customers of Andes Trans, a Colombian logistics company. " +
	"Be brief and courteous. Capture facts exclusively through the available tools."

func newCustomerVertical(deps *Deps) *Vertical {
	return newVertical(models.CategoryActiveCustomer, StateCustomerAwaitingTaxID, deps.Logger, map[string]Handler{
		StateCustomerAwaitingTaxID:       customerAwaitingTaxID(deps),
		StateCustomerAwaitingResolution:  customerAwaitingResolution(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func customerAwaitingTaxID(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "capture_tax_id",
		Description: "Call this with the company tax ID (NIT) as soon as the user provides it.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"tax_id": {Type: "string"},
		}, "tax_id"),
	}, func(args map[string]any) (any, error) {
		return argString(args, "tax_id"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, customerPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if taxID, _ := result.Results["capture_tax_id"].(string); taxID != "" {
			scratch["tax_id"] = taxID
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgCustomerAskNeed, "capture_tax_id")},
				Next:     StateCustomerAwaitingResolution,
				ToolCall: "capture_tax_id",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgCustomerAskTaxID
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCustomerAwaitingTaxID,
			Scratch:  scratch,
		}, nil
	}
}

func customerAwaitingResolution(deps *Deps) Handler {
	registry := llm.NewRegistry()
	boolQuery := func(name, desc, arg string) {
		registry.MustRegister(llm.Tool{
			Name:        name,
			Description: desc,
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				arg: {Type: "boolean"},
			}, arg),
		}, func(args map[string]any) (any, error) {
			return argBool(args, arg), nil
		})
	}
	boolQuery("is_tracking_query", "Call this when the user asks about the status or location of a shipment.", "tracking")
	boolQuery("is_billing_query", "Call this when the user asks about invoices, payments or account statements.", "billing")
	boolQuery("is_credit_hold_query", "Call this when the user reports a blocked dispatch due to overdue balance.", "credit_hold")
	boolQuery("is_quote_query", "Call this when the user asks for a new quote or an additional service.", "quote")
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	type resolution struct {
		tool    string
		message string
		kind    string
	}
	resolutions := []resolution{
		{"is_tracking_query", MsgCustomerTracking, "TRACKING"},
		{"is_billing_query", MsgCustomerBilling, "BILLING"},
		{"is_credit_hold_query", MsgCustomerCreditHold, "CREDIT_HOLD"},
	}

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, customerPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if quote, _ := result.Results["is_quote_query"].(bool); quote {
			return &Outcome{
				ToolCall: "is_quote_query",
				Scratch:  scratch,
				Redirect: models.CategorySalesLead,
			}, nil
		}

		for _, r := range resolutions {
			matched, _ := result.Results[r.tool].(bool)
			if !matched {
				continue
			}
			taxID, _ := scratch["tax_id"].(string)
			deps.AppendRowOnce(ctx, scratch, sheetActiveCustomers, []string{
				deps.now().Format("02/01/2006"),
				taxID,
				turn.Profile["phoneNumber"],
				r.kind,
			})
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(r.message, r.tool)},
				Next:     models.StateConversationFinished,
				ToolCall: r.tool,
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgCustomerAskNeed
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCustomerAwaitingResolution,
			Scratch:  scratch,
		}, nil
	}
}
