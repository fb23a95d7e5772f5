package workflow

import (
	"context"
	"strings"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// General-assistant vertical: an open question-answering loop over company
// knowledge. Used when the router runs in assistant mode instead of the
// classify-and-dispatch mode.

const StateAssistantAnswering = "ANSWERING"

const assistantPrompt = "You answer questions about Andes Trans, a Colombian logistics company: its services, " +
	"coverage, requirements and procedures. Ground every answer in the provided company context. If the context " +
	"does not cover the question, say so and offer to connect the user with a person via request_human_help."

// Retriever supplies company context for a query. Implementations may back
// this with a vector store or a static document.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// StaticRetriever returns the same document for every query.
type StaticRetriever struct {
	Document string
}

func (r *StaticRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	return r.Document, nil
}

func newAssistantVertical(deps *Deps) *Vertical {
	return newVertical(models.CategoryGeneralAssistant, StateAssistantAnswering, deps.Logger, map[string]Handler{
		StateAssistantAnswering:          assistantAnswering(deps),
		models.StateConversationFinished: autopilotHandler(deps),
	})
}

const sheetAssistantContacts = "ASSISTANT_CONTACTS"

func assistantAnswering(deps *Deps) Handler {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        "save_contact_info",
		Description: "Save the user's contact data when they share it so the commercial team can follow up.",
		Parameters: llm.ObjectSchema(map[string]llm.Param{
			"name":    {Type: "string"},
			"email":   {Type: "string"},
			"company": {Type: "string"},
		}),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	return func(ctx context.Context, turn *Turn) (*Outcome, error) {
		scratch := turn.CloneScratch()

		prompt := assistantPrompt
		if deps.Retriever != nil {
			query := lastUserText(turn.Transcript)
			doc, err := deps.Retriever.Retrieve(ctx, query)
			if err == nil && doc != "" {
				prompt = assistantPrompt + "\n\nCompany context:\n" + doc
			}
		}

		result, err := deps.Loop.Run(ctx, turn.Transcript, prompt, registry, 2)
		if err != nil {
			return escalationOutcome(scratch), nil
		}
		if result.CalledAny(ToolRequestHumanHelp) != "" {
			return escalationOutcome(scratch), nil
		}

		if args, called := result.Args["save_contact_info"]; called {
			deps.AppendRowOnce(ctx, scratch, sheetAssistantContacts, []string{
				deps.now().Format("02/01/2006"),
				argString(args, "name"),
				argString(args, "company"),
				argString(args, "email"),
				turn.Profile["phoneNumber"],
			})
		}

		text := strings.TrimSpace(result.Text)
		if text == "" {
			return escalationOutcome(scratch), nil
		}
		return &Outcome{
			Messages: []models.Message{models.NewModelMessage(text)},
			Next:     StateAssistantAnswering,
			Scratch:  scratch,
		}, nil
	}
}

func lastUserText(transcript []models.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == models.RoleUser {
			return transcript[i].Text
		}
	}
	return ""
}
