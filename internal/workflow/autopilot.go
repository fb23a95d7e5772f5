package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// How many messages a finished conversation absorbs before escalating instead
// of looping in autopilot forever.
const maxMessagesAfterFinished = 3

const autopilotPrompt = "The previous request in this conversation is already resolved. " +
	"Answer only two things: if the user states a new, different need, call new_interaction_required; " +
	"if they ask for a person, call request_human_help. Otherwise reply with one short, polite sentence " +
	"telling them the previous request is closed and asking whether they need anything else."

// autopilotHandler is the short sub-machine every vertical re-enters after
// CONVERSATION_FINISHED: it only decides whether the user has a new need
// (back to reclassification) or wants a human.
func autopilotHandler(deps *Deps) Handler {
	registry := llm.NewRegistry()
	newTool, newFn := newInteractionTool()
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(newTool, newFn).MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()

		count, _ := scratch[KeyMessagesAfterFinished].(float64)
		if int(count) >= maxMessagesAfterFinished {
			return escalationOutcome(scratch), nil
		}
		scratch[KeyMessagesAfterFinished] = count + 1

		result, err := deps.Loop.Run(ctx, turn.Transcript, autopilotPrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}

		if result.CalledAny(ToolNewInteractionRequired) != "" {
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgAskNewNeed, ToolNewInteractionRequired)},
				Next:     models.StateAwaitingReclassification,
				ToolCall: ToolNewInteractionRequired,
				Scratch:  scratch,
			}, nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		text := result.Text
		if text == "" {
			text = MsgConversationClosed
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     models.StateConversationFinished,
			Scratch:  scratch,
		}, nil
	}
}
