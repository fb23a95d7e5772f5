package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Third-party carrier vertical: register owner-operators who want to haul
// loads for the company, then walk them through the enrollment video.

const (
	StateCarrierAwaitingRequestType = "AWAITING_REQUEST_TYPE"
	StateCarrierAwaitingInfo        = "AWAITING_CARRIER_INFO"
	StateCarrierVideoSent           = "VIDEO_SENT"
)

const sheetCarriers = "THIRD_PARTY_CARRIERS"

const carrierEnrollVideo = "carrier_enrollment.mp4"

const carrierPrompt = "You register third-party carriers (truck owners and drivers) for Andes Trans, a Colombian " +
	"logistics company. Be brief and courteous. Capture facts exclusively through the available tools."

func newCarrierVertical(deps *Deps) *Vertical {
	return newVertical(models.CategoryCarrier, StateCarrierAwaitingRequestType, deps.Logger, map[string]Handler{
		StateCarrierAwaitingRequestType:  carrierAwaitingRequestType(deps),
		StateCarrierAwaitingInfo:         carrierAwaitingInfo(deps),
		StateCarrierVideoSent:            carrierVideoSent(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func carrierAwaitingRequestType(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "get_request_type",
		Description: "Call this once it is clear what the carrier wants: ENROLLMENT to start hauling for the company, LOADS to ask for available loads, or PAYMENT for settlement questions.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"request_type": {Type: "string", Description: "ENROLLMENT, LOADS or PAYMENT."},
		}, "request_type"),
	}, func(args map[string]any) (any, error) {
		return argString(args, "request_type"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, carrierPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if requestType, _ := result.Results["get_request_type"].(string); requestType != "" {
			scratch["carrier_request_type"] = requestType
			if requestType == "PAYMENT" {
				return escalationOutcome(scratch), nil
			}
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgCarrierAskInfo, "get_request_type")},
				Next:     StateCarrierAwaitingInfo,
				ToolCall: "get_request_type",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgCarrierAskInfo
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCarrierAwaitingRequestType,
			Scratch:  scratch,
		}, nil
	}
}

func carrierAwaitingInfo(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_carrier_info",
		Description: "Save the carrier's data once the driver name, vehicle plate and vehicle type are all provided.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"driver_name":  {Type: "string"},
			"plate":        {Type: "string"},
			"vehicle_type": {Type: "string"},
			"city":         {Type: "string"},
		}, "driver_name", "plate", "vehicle_type"),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, carrierPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if args, called := result.Args["save_carrier_info"]; called {
			requestType, _ := scratch["carrier_request_type"].(string)
			deps.AppendRowOnce(ctx, scratch, sheetCarriers, []string{
				deps.now().Format("02/01/2006"),
				argString(args, "driver_name"),
				argString(args, "plate"),
				argString(args, "vehicle_type"),
				argString(args, "city"),
				turn.Profile["phoneNumber"],
				requestType,
			})
			scratch[KeyVideoToSend] = map[string]any{
				"video_file": carrierEnrollVideo,
				"caption":    MsgCarrierVideoCaption,
			}
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgCarrierVideoFollow, "save_carrier_info")},
				Next:     StateCarrierVideoSent,
				ToolCall: ActionSendVideo,
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgCarrierAskInfo
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCarrierAwaitingInfo,
			Scratch:  scratch,
		}, nil
	}
}

func carrierVideoSent(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "video_resolved",
		Description: "Call this with resolved=true if the video answered the carrier's question, resolved=false if they still need help.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"resolved": {Type: "boolean"},
		}, "resolved"),
	}, func(args map[string]any) (any, error) {
		return argBool(args, "resolved"), nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, carrierPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if _, called := result.Results["video_resolved"]; called {
			resolved, _ := result.Results["video_resolved"].(bool)
			if resolved {
				return &Outcome{
					Messages: []models.Message{models.NewModelMessage(MsgCarrierResolved, "video_resolved")},
					Next:     models.StateConversationFinished,
					ToolCall: "video_resolved",
					Scratch:  scratch,
				}, nil
			}
			return escalationOutcome(scratch), nil
		}

		text := result.Text
		if text == "" {
			text = MsgCarrierVideoFollow
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCarrierVideoSent,
			Scratch:  scratch,
		}, nil
	}
}
