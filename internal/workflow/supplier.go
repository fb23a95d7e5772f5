package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Supplier vertical: register companies that want to sell goods or services
// to Andes Trans so the purchasing team can evaluate them.

const (
	StateSupplierAwaitingServiceType = "AWAITING_SERVICE_TYPE"
	StateSupplierAwaitingCompanyInfo = "AWAITING_COMPANY_INFO"
)

const sheetSuppliers = "SUPPLIERS"

const supplierPrompt = "You register potential suppliers for Andes Trans, a Colombian logistics company. " +
	"Be brief and courteous. Capture facts exclusively through the available tools."

func newSupplierVertical(deps *Deps) *Vertical {
	return newVertical(models.CategorySupplier, StateSupplierAwaitingServiceType, deps.Logger, map[string]Handler{
		StateSupplierAwaitingServiceType: supplierAwaitingServiceType(deps),
		StateSupplierAwaitingCompanyInfo: supplierAwaitingCompanyInfo(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func supplierAwaitingServiceType(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "get_offered_service",
		Description: "Call this once the user describes what they offer, e.g. fuel, tires, insurance, maintenance.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"offered_service": {Type: "string"},
		}, "offered_service"),
	}, func(args map[string]any) (any, error) {
		return argString(args, "offered_service"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, supplierPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if offered, _ := result.Results["get_offered_service"].(string); offered != "" {
			scratch["offered_service"] = offered
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgSupplierAskCompany, "get_offered_service")},
				Next:     StateSupplierAwaitingCompanyInfo,
				ToolCall: "get_offered_service",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgSupplierAskCompany
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateSupplierAwaitingServiceType,
			Scratch:  scratch,
		}, nil
	}
}

func supplierAwaitingCompanyInfo(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_supplier_info",
		Description: "Save the supplier's data once the company name, contact name and email are all provided.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"company_name": {Type: "string"},
			"contact_name": {Type: "string"},
			"email":        {Type: "string"},
		}, "company_name", "contact_name", "email"),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, supplierPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if args, called := result.Args["save_supplier_info"]; called {
			offered, _ := scratch["offered_service"].(string)
			deps.AppendRowOnce(ctx, scratch, sheetSuppliers, []string{
				deps.now().Format("02/01/2006"),
				argString(args, "company_name"),
				argString(args, "contact_name"),
				argString(args, "email"),
				turn.Profile["phoneNumber"],
				offered,
			})
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgSupplierRegistered, "save_supplier_info")},
				Next:     models.StateConversationFinished,
				ToolCall: "save_supplier_info",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgSupplierAskCompany
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateSupplierAwaitingCompanyInfo,
			Scratch:  scratch,
		}, nil
	}
}
