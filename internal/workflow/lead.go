package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/validation"
)

// Sales-lead vertical: qualify a potential customer, collect contact and
// service data, and hand the lead to the assigned commercial agent.

const (
	StateLeadAwaitingTaxID         = "AWAITING_TAX_ID"
	StateLeadAwaitingFreightAgent  = "AWAITING_INDIVIDUAL_FREIGHT_INFO"
	StateLeadAwaitingRemainingInfo = "AWAITING_REMAINING_INFO"
	StateLeadEmailRequested        = "EMAIL_REQUESTED"
)

const sheetSalesLeads = "SALES_LEADS"

const leadPrompt = "You qualify potential freight customers for Andes Trans, a Colombian logistics company. " +
	"Be brief and courteous. Capture facts exclusively through the available tools; validate goods and cities " +
	"whenever the user mentions them."

const leadGatherPrompt = "You are collecting the remaining commercial data for a qualified freight lead: legal " +
	"company name, contact name and position, email, service type, goods, weight, origin and destination cities, " +
	"and average monthly trips. Save every piece through the tools as soon as the user provides it, and call " +
	"save_service_info_complete only when goods, origin and destination are all known."

func newLeadVertical(deps *Deps) *Vertical {
	return newVertical(models.CategorySalesLead, StateLeadAwaitingTaxID, deps.Logger, map[string]Handler{
		StateLeadAwaitingTaxID:           leadAwaitingTaxID(deps),
		StateLeadAwaitingFreightAgent:    leadAwaitingFreightAgent(deps),
		StateLeadAwaitingRemainingInfo:   leadAwaitingRemainingInfo(deps),
		StateLeadEmailRequested:          leadEmailRequested(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func leadAwaitingTaxID(deps *Deps) Handler {
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
	registry.MustRegister(llm.Tool{
		Name:        "is_individual",
		Description: "Call this with individual=true when the user says they are not a company, e.g. they have no tax ID.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"individual": {Type: "boolean"},
		}, "individual"),
	}, func(args map[string]any) (any, error) {
		return argBool(args, "individual"), nil
	})
	validation.RegisterAll(registry)
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, leadPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}

		if msg, tool := validation.TerminalRejection(result); msg != "" {
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(msg, tool)},
				Next:     models.StateConversationFinished,
				ToolCall: tool,
				Scratch:  scratch,
			}, nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if individual, _ := result.Results["is_individual"].(bool); individual {
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgLeadAskFreightAgent, "is_individual")},
				Next:     StateLeadAwaitingFreightAgent,
				ToolCall: "is_individual",
				Scratch:  scratch,
			}, nil
		}

		if taxID, _ := result.Results["capture_tax_id"].(string); taxID != "" {
			scratch["tax_id"] = taxID
			if deps.Directory != nil {
				record, err := deps.Directory.LookupTaxID(ctx, taxID)
				if err != nil {
					deps.Logger.Error("Tax ID lookup failed", zap.Error(err))
				} else if record != nil {
					scratch["tax_id_status"] = record["status"]
					scratch["agent_raw_name"] = record["agent_name"]
					scratch["agent_raw_email"] = record["agent_email"]
					scratch["agent_raw_phone"] = record["agent_phone"]
				}
			}
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgLeadAskRemainingInfo, "capture_tax_id")},
				Next:     StateLeadAwaitingRemainingInfo,
				ToolCall: "capture_tax_id",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgLeadAskTaxID
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateLeadAwaitingTaxID,
			Scratch:  scratch,
		}, nil
	}
}

func leadAwaitingFreightAgent(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "needs_freight_agent",
		Description: "Call this with needs=true if the individual is interested in freight agency support, needs=false if not.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"needs": {Type: "boolean"},
		}, "needs"),
	}, func(args map[string]any) (any, error) {
		return argBool(args, "needs"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, leadPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if _, called := result.Results["needs_freight_agent"]; called {
			needs, _ := result.Results["needs_freight_agent"].(bool)
			if needs {
				scratch["discard_reason"] = "Individual, referred to freight agency"
				deps.AppendRowOnce(ctx, scratch, sheetSalesLeads, leadExportRow(deps, scratch, turn.Profile))
				return &Outcome{
					Messages: []models.Message{models.NewModelMessage(MsgHumanHandoff, ToolRequestHumanHelp)},
					Next:     models.StateHumanEscalation,
					ToolCall: ToolRequestHumanHelp,
					Scratch:  scratch,
				}, nil
			}
			scratch["discard_reason"] = "Individual, no freight agency interest"
			deps.AppendRowOnce(ctx, scratch, sheetSalesLeads, leadExportRow(deps, scratch, turn.Profile))
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgLeadIndividualDiscard, "needs_freight_agent")},
				Next:     models.StateConversationFinished,
				ToolCall: "needs_freight_agent",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgLeadAskFreightAgent
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateLeadAwaitingFreightAgent,
			Scratch:  scratch,
		}, nil
	}
}

func leadAwaitingRemainingInfo(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_contact_info",
		Description: "Save any piece of company or contact information the user provides.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"legal_name":   {Type: "string", Description: "Registered company name."},
			"contact_name": {Type: "string"},
			"position":     {Type: "string"},
			"email":        {Type: "string"},
		}),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	registry.MustRegister(llm.Tool{
		Name:        "save_service_info",
		Description: "Save any piece of information about the service the lead needs.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"service_type":     {Type: "string", Description: "One of NATIONAL_TRANSPORT, EXPORT, IMPORT, DISTRIBUTION, WAREHOUSING, ANDEAN_TRANSPORT."},
			"goods_type":       {Type: "string"},
			"goods_details":    {Type: "string"},
			"weight":           {Type: "string"},
			"origin_city":      {Type: "string"},
			"destination_city": {Type: "string"},
			"monthly_trips":    {Type: "string"},
		}),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	registry.MustRegister(llm.Tool{
		Name:        "save_service_info_complete",
		Description: "Call this with complete=true once goods type, origin city and destination city are all collected.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"complete": {Type: "boolean"},
		}, "complete"),
	}, func(args map[string]any) (any, error) {
		return argBool(args, "complete"), nil
	})
	registry.MustRegister(llm.Tool{
		Name:        "customer_requested_email",
		Description: "Call this with requested=true when the user prefers to send the information by email instead of chat.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"requested": {Type: "boolean"},
		}, "requested"),
	}, func(args map[string]any) (any, error) {
		return argBool(args, "requested"), nil
	})
	validation.RegisterAll(registry)
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, leadGatherPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}

		if msg, tool := validation.TerminalRejection(result); msg != "" {
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(msg, tool)},
				Next:     models.StateConversationFinished,
				ToolCall: tool,
				Scratch:  scratch,
			}, nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		mergeLeadInfo(scratch, result.Args["save_contact_info"])
		mergeLeadInfo(scratch, result.Args["save_service_info"])

		if requested, _ := result.Results["customer_requested_email"].(bool); requested {
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgLeadEmailAddress, "customer_requested_email")},
				Next:     StateLeadEmailRequested,
				ToolCall: "customer_requested_email",
				Scratch:  scratch,
			}, nil
		}

		if complete, _ := result.Results["save_service_info_complete"].(bool); complete {
			deps.AppendRowOnce(ctx, scratch, sheetSalesLeads, leadExportRow(deps, scratch, turn.Profile))
			return leadFinishOutcome(ctx, deps, scratch), nil
		}

		text := result.Text
		if text == "" {
			text = MsgLeadAskRemainingInfo
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateLeadAwaitingRemainingInfo,
			Scratch:  scratch,
		}, nil
	}
}

func leadEmailRequested(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_customer_email",
		Description: "Save the email address the user provides after asking to continue by email.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"email": {Type: "string"},
		}, "email"),
	}, func(args map[string]any) (any, error) {
		return argString(args, "email"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, leadPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if email, _ := result.Results["save_customer_email"].(string); email != "" {
			scratch["customer_email"] = email
			scratch["discard_reason"] = "Preferred email"
			deps.AppendRowOnce(ctx, scratch, sheetSalesLeads, leadExportRow(deps, scratch, turn.Profile))
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgLeadEmailSaved, "save_customer_email")},
				Next:     models.StateConversationFinished,
				ToolCall: "save_customer_email",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgLeadEmailAddress
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateLeadEmailRequested,
			Scratch:  scratch,
		}, nil
	}
}

// leadFinishOutcome picks the closing message: an assigned agent when the CRM
// has a valid one, a generic assignment promise for prospects, and a human
// handoff otherwise.
func leadFinishOutcome(ctx context.Context, deps *Deps, scratch map[string]any) *Outcome {
	status, _ := scratch["tax_id_status"].(string)
	if status == "" || status == "PROSPECT" {
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(MsgLeadAgentProspect)},
			Next:     models.StateConversationFinished,
			Scratch:  scratch,
		}
	}

	agent := cleanAgentData(ctx, deps, scratch)
	if agent != nil {
		scratch["agent_name"] = agent["name"]
		text := fmt.Sprintf(MsgLeadAgentAssignedFmt, agent["name"], agent["email"], agent["phone"])
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     models.StateConversationFinished,
			Scratch:  scratch,
		}
	}

	return &Outcome{
		Messages: []models.Message{models.NewModelMessage(MsgHumanHandoff, ToolRequestHumanHelp)},
		Next:     models.StateConversationFinished,
		ToolCall: ToolRequestHumanHelp,
		Scratch:  scratch,
	}
}

// cleanAgentData runs a one-shot tool call asking the model to normalize the
// raw CRM agent fields (title-case the name, drop placeholders like "N/A").
// Returns nil when no valid agent could be derived.
func cleanAgentData(ctx context.Context, deps *Deps, scratch map[string]any) map[string]string {
	rawName, _ := scratch["agent_raw_name"].(string)
	if rawName == "" {
		return nil
	}
	rawEmail, _ := scratch["agent_raw_email"].(string)
	rawPhone, _ := scratch["agent_raw_phone"].(string)

	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "clean_agent_data",
		Description: "Report whether the CRM agent record is valid, with the name in title case and placeholder emails/phones replaced by empty strings.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"valid":  {Type: "boolean", Description: "False for placeholders like UNASSIGNED or N/A."},
			"name":   {Type: "string"},
			"email":  {Type: "string"},
			"phone":  {Type: "string"},
			"reason": {Type: "string", Description: "Why the record is invalid, when valid=false."},
		}, "valid"),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})

	prompt := fmt.Sprintf("Commercial agent record from the CRM export:\nName: %q\nEmail: %q\nPhone: %q\nUse clean_agent_data to report the cleaned values.", rawName, rawEmail, rawPhone)
	result, err := deps.Loop.Run(ctx,
		[]models.Message{models.NewUserMessage(prompt)},
		"You clean CRM contact records. Analyze the fields and call the tool.",
		registry, 1)
	if err != nil {
		deps.Logger.Error("Agent data cleaning failed", zap.Error(err))
		return nil
	}

	args, called := result.Args["clean_agent_data"]
	if !called {
		return nil
	}
	if valid, _ := args["valid"].(bool); !valid {
		return nil
	}
	name := argString(args, "name")
	if name == "" {
		return nil
	}
	return map[string]string{
		"name":  name,
		"email": argString(args, "email"),
		"phone": argString(args, "phone"),
	}
}

func mergeLeadInfo(scratch map[string]any, args map[string]any) {
	if len(args) == 0 {
		return
	}
	info, _ := scratch["lead_info"].(map[string]any)
	if info == nil {
		info = map[string]any{}
	}
	for k, v := range args {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if v != nil {
			info[k] = v
		}
	}
	scratch["lead_info"] = info
}

func leadExportRow(deps *Deps, scratch map[string]any, profile map[string]string) []string {
	info, _ := scratch["lead_info"].(map[string]any)
	get := func(key string) string {
		if info == nil {
			return ""
		}
		v, _ := info[key].(string)
		return v
	}
	taxID, _ := scratch["tax_id"].(string)
	status, _ := scratch["tax_id_status"].(string)
	email := get("email")
	if email == "" {
		email, _ = scratch["customer_email"].(string)
	}
	discard, _ := scratch["discard_reason"].(string)
	profiled := "YES"
	if discard != "" {
		profiled = "NO"
	}
	agent, _ := scratch["agent_name"].(string)
	if agent == "" {
		agent, _ = scratch["agent_raw_name"].(string)
	}
	return []string{
		deps.now().Format("02/01/2006"),
		taxID,
		status,
		get("legal_name"),
		get("contact_name"),
		get("position"),
		profile["phoneNumber"],
		email,
		get("service_type"),
		get("goods_type"),
		get("weight"),
		get("origin_city"),
		get("destination_city"),
		get("monthly_trips"),
		get("goods_details"),
		profiled,
		discard,
		agent,
	}
}
