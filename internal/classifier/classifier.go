// Package classifier decides which business vertical a new conversation
// belongs to, scoring every category in a single model call.
package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/validation"
	"github.com/andestrans/cargobot/internal/workflow"
)

const toolClassify = "classify_interaction"

const classifyPrompt = `You classify the first messages of a WhatsApp conversation with Andes Trans, a Colombian logistics company, into business categories:

- SALES_LEAD: a company or person asking for freight quotes or transport services for the first time.
- ACTIVE_CUSTOMER: an existing customer asking about shipments in progress, invoices or blocked dispatches.
- THIRD_PARTY_CARRIER: a truck owner or driver offering to haul loads for the company.
- SUPPLIER: a company offering to sell goods or services (fuel, tires, insurance) to Andes Trans.
- STAFF: an Andes Trans employee with an internal request.
- JOB_CANDIDATE: a person applying for a job.

Score every category with classify_interaction. If the user mentions goods or cities, validate them with the validation tools before classifying. If the user explicitly asks for a human, call request_human_help.`

const fallbackPrompt = "You are the WhatsApp assistant of Andes Trans, a Colombian logistics company. The user's " +
	"intent is not clear yet. Reply briefly and ask what they need: a freight quote, help with a shipment, carrier " +
	"enrollment, supplier registration or a job application. If they ask for a human, call request_human_help."

// Result is the routing decision for one turn. Category is OTHER until a
// single vertical wins; Next, when set, is a terminal state the session
// must move to instead of being dispatched.
type Result struct {
	Messages       []models.Message
	Category       models.Category
	Matches        []models.Category
	Classification *models.Classification
	ToolCall       string
	Next           string
}

type Classifier struct {
	loop      *llm.Loop
	registry  *llm.Registry
	fallback  *llm.Registry
	threshold float64
	logger    *zap.Logger
}

func NewClassifier(loop *llm.Loop, threshold float64, logger *zap.Logger) *Classifier {
	registry := llm.NewRegistry()
	registry.MustRegister(llm.Tool{
		Name:        toolClassify,
		Description: "Report the confidence score of every business category for this conversation.",
		Parameters:  json.RawMessage(classifySchema),
	}, func(args map[string]any) (any, error) {
		return args, nil
	})
	validation.RegisterAll(registry)
	helpTool, helpFn := humanHelpTool()
	registry.MustRegister(helpTool, helpFn)

	fallback := llm.NewRegistry()
	fallback.MustRegister(humanHelpTool())

	return &Classifier{
		loop:      loop,
		registry:  registry,
		fallback:  fallback,
		threshold: threshold,
		logger:    logger,
	}
}

// Classify never fails: model errors, malformed scores and explicit help
// requests all collapse into a human-escalation result.
func (c *Classifier) Classify(ctx context.Context, transcript []models.Message) *Result {
	result, err := c.loop.Run(ctx, transcript, classifyPrompt, c.registry, 1)
	if err != nil {
		c.logger.Error("Classification call failed", zap.Error(err))
		return escalationResult(nil)
	}

	if msg, tool := validation.TerminalRejection(result); msg != "" {
		return &Result{
			Messages: []models.Message{models.NewModelMessage(msg, tool)},
			Category: models.CategoryOther,
			ToolCall: tool,
			Next:     models.StateConversationFinished,
		}
	}
	if result.CalledAny(workflow.ToolRequestHumanHelp) != "" {
		return escalationResult(nil)
	}

	args, called := result.Args[toolClassify]
	if !called {
		return c.converse(ctx, transcript)
	}

	cls, ok := decodeClassification(args)
	if !ok {
		c.logger.Warn("Malformed classification payload", zap.Any("args", args))
		return escalationResult(nil)
	}

	matches := classifiableMatches(cls.HighConfidence(c.threshold))
	c.logger.Info("Session classified",
		zap.String("primary", string(cls.Primary)),
		zap.Int("matches", len(matches)))

	switch len(matches) {
	case 1:
		return &Result{
			Category:       matches[0],
			Matches:        matches,
			Classification: cls,
			ToolCall:       toolClassify,
		}
	case 0:
		out := c.converse(ctx, transcript)
		out.Classification = cls
		return out
	default:
		out := escalationResult(cls)
		out.Matches = matches
		return out
	}
}

// converse produces a holding reply when no vertical wins yet.
func (c *Classifier) converse(ctx context.Context, transcript []models.Message) *Result {
	result, err := c.loop.Run(ctx, transcript, fallbackPrompt, c.fallback, 1)
	if err != nil {
		c.logger.Error("Fallback call failed", zap.Error(err))
		return escalationResult(nil)
	}
	if result.CalledAny(workflow.ToolRequestHumanHelp) != "" {
		return escalationResult(nil)
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return escalationResult(nil)
	}
	return &Result{
		Messages: []models.Message{models.NewModelMessage(text)},
		Category: models.CategoryOther,
	}
}

func escalationResult(cls *models.Classification) *Result {
	return &Result{
		Messages:       []models.Message{models.NewModelMessage(workflow.MsgHumanHandoff, workflow.ToolRequestHumanHelp)},
		Category:       models.CategoryOther,
		Classification: cls,
		ToolCall:       workflow.ToolRequestHumanHelp,
		Next:           models.StateHumanEscalation,
	}
}

func decodeClassification(args map[string]any) (*models.Classification, bool) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, false
	}
	var cls models.Classification
	if err := json.Unmarshal(raw, &cls); err != nil {
		return nil, false
	}
	if len(cls.Scores) == 0 || !cls.Validate() {
		return nil, false
	}
	return &cls, true
}

func classifiableMatches(categories []models.Category) []models.Category {
	var out []models.Category
	for _, c := range categories {
		for _, known := range models.ClassifiableCategories {
			if c == known {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func humanHelpTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name:        workflow.ToolRequestHumanHelp,
			Description: "Call this when the user explicitly asks to talk to a person.",
			Parameters:  llm.ObjectSchema(map[string]llm.Param{}),
		}, func(args map[string]any) (any, error) {
			return true, nil
		}
}

const classifySchema = `{
  "type": "object",
  "properties": {
    "categoryScores": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "category": {"type": "string", "enum": ["SALES_LEAD", "ACTIVE_CUSTOMER", "THIRD_PARTY_CARRIER", "SUPPLIER", "STAFF", "JOB_CANDIDATE"]},
          "confidence": {"type": "number"},
          "rationale": {"type": "string"},
          "keyIndicators": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["category", "confidence", "rationale"]
      }
    },
    "primaryCategory": {"type": "string"},
    "alternativeCategories": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["categoryScores", "primaryCategory"]
}`
