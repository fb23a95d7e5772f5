package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Staff vertical: internal employees reporting HR or operational needs.

const (
	StateStaffAwaitingNeedType = "AWAITING_NEED_TYPE"
	StateStaffAwaitingInfo     = "AWAITING_STAFF_INFO"
)

const sheetStaff = "STAFF_REQUESTS"

const staffPrompt = "You receive internal requests from Andes Trans employees (drivers, operators, office staff). " +
	"Be brief and courteous. Capture facts exclusively through the available tools."

func newStaffVertical(deps *Deps) *Vertical {
	return newVertical(models.CategoryStaff, StateStaffAwaitingNeedType, deps.Logger, map[string]Handler{
		StateStaffAwaitingNeedType:       staffAwaitingNeedType(deps),
		StateStaffAwaitingInfo:           staffAwaitingInfo(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func staffAwaitingNeedType(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "get_need_type",
		Description: "Call this once it is clear what the employee needs: CERTIFICATE for labor certificates, PAYROLL for payroll questions, or OPERATIONS for operational issues.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"need_type": {Type: "string", Description: "CERTIFICATE, PAYROLL or OPERATIONS."},
		}, "need_type"),
	}, func(args map[string]any) (any, error) {
		return argString(args, "need_type"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, staffPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if needType, _ := result.Results["get_need_type"].(string); needType != "" {
			scratch["staff_need_type"] = needType
			if needType == "OPERATIONS" {
				return escalationOutcome(scratch), nil
			}
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgStaffAskDetails, "get_need_type")},
				Next:     StateStaffAwaitingInfo,
				ToolCall: "get_need_type",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgStaffAskDetails
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateStaffAwaitingNeedType,
			Scratch:  scratch,
		}, nil
	}
}

func staffAwaitingInfo(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_staff_request",
		Description: "Save the employee's request once their full name, national ID and request details are all provided.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"name":        {Type: "string"},
			"national_id": {Type: "string"},
			"details":     {Type: "string"},
		}, "name", "national_id", "details"),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, staffPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if args, called := result.Args["save_staff_request"]; called {
			needType, _ := scratch["staff_need_type"].(string)
			deps.AppendRowOnce(ctx, scratch, sheetStaff, []string{
				deps.now().Format("02/01/2006"),
				argString(args, "name"),
				argString(args, "national_id"),
				needType,
				argString(args, "details"),
				turn.Profile["phoneNumber"],
			})
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgStaffRegistered, "save_staff_request")},
				Next:     models.StateConversationFinished,
				ToolCall: "save_staff_request",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgStaffAskDetails
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateStaffAwaitingInfo,
			Scratch:  scratch,
		}, nil
	}
}
