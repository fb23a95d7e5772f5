package workflow

import (
	"context"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Job-candidate vertical: single-step capture of an applicant's data, then
// point them to the resume inbox.

const StateCandidateAwaitingInfo = "AWAITING_CANDIDATE_INFO"

const sheetCandidates = "JOB_CANDIDATES"

const candidatePrompt = "You receive job applications for Andes Trans, a Colombian logistics company. " +
	"Be brief and courteous. Capture facts exclusively through the available tools."

func newCandidateVertical(deps *Deps) *Vertical {
	return newVertical(models.CategoryJobCandidate, StateCandidateAwaitingInfo, deps.Logger, map[string]Handler{
		StateCandidateAwaitingInfo:       candidateAwaitingInfo(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

func candidateAwaitingInfo(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_candidate_info",
		Description: "Save the applicant's data once the full name, national ID and desired vacancy are all provided.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"name":        {Type: "string"},
			"national_id": {Type: "string"},
			"vacancy":     {Type: "string"},
		}, "name", "national_id", "vacancy"),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()
		result, err := deps.Loop.Run(ctx, turn.Transcript, candidatePrompt, registry, 1)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if args, called := result.Args["save_candidate_info"]; called {
			deps.AppendRowOnce(ctx, scratch, sheetCandidates, []string{
				deps.now().Format("02/01/2006"),
				argString(args, "name"),
				argString(args, "national_id"),
				argString(args, "vacancy"),
				turn.Profile["phoneNumber"],
			})
			return &Outcome{
				Messages: []models.Message{models.NewModelMessage(MsgCandidateResume, "save_candidate_info")},
				Next:     models.StateConversationFinished,
				ToolCall: "save_candidate_info",
				Scratch:  scratch,
			}, nil
		}

		text := result.Text
		if text == "" {
			text = MsgCandidateResume
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateCandidateAwaitingInfo,
			Scratch:  scratch,
		}, nil
	}
}
