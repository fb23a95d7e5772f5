// Package orchestrator glues storage, classification and the vertical state
// machines into the single entry point transports call per inbound message.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/classifier"
	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/storage"
	"github.com/andestrans/cargobot/internal/workflow"
)

// Router modes. In classify mode new sessions go through the intent
// classifier; in assistant mode everything routes to the general assistant.
const (
	ModeClassify  = "classify"
	ModeAssistant = "assistant"
)

// maxRedirects bounds the cross-vertical re-dispatch loop within one turn.
const maxRedirects = 3

type Config struct {
	Mode                    string
	MaxUnclassifiedMessages int
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeClassify
	}
	if c.MaxUnclassifiedMessages <= 0 {
		c.MaxUnclassifiedMessages = 10
	}
}

type Orchestrator struct {
	store      storage.Storage
	verticals  *workflow.Registry
	classifier *classifier.Classifier
	cfg        Config
	logger     *zap.Logger
}

func New(store storage.Storage, verticals *workflow.Registry, cls *classifier.Classifier, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		store:      store,
		verticals:  verticals,
		classifier: cls,
		cfg:        cfg,
		logger:     logger,
	}
}

// HandleTurn processes one inbound user message end to end: load or create
// the session, route it, and persist the updated record in a single write.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text string, profile map[string]string) (*models.Reply, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		session = models.NewSession(sessionID)
	}
	if session.Deleted {
		session.Reset()
	}
	if session.Scratch == nil {
		session.Scratch = map[string]any{}
	}
	if session.State == models.StateAwaitingReclassification {
		// The previous flow ended and the user asked to start over: forget
		// the routing decision and the old conversation so the classifier
		// only sees the new need.
		delete(session.Scratch, workflow.KeyClassifiedAs)
		delete(session.Scratch, workflow.KeySpecialListSent)
		delete(session.Scratch, workflow.KeySheetRowAdded)
		delete(session.Scratch, workflow.KeyMessagesAfterFinished)
		session.Transcript = nil
		session.State = ""
	}
	session.MergeProfile(profile)
	session.Transcript = append(session.Transcript, models.NewUserMessage(text))

	reply := o.route(ctx, session)

	if err := o.store.UpsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", sessionID, err)
	}
	return reply, nil
}

func (o *Orchestrator) route(ctx context.Context, session *models.Session) *models.Reply {
	if o.cfg.Mode == ModeAssistant {
		return o.dispatch(ctx, session, models.CategoryGeneralAssistant)
	}

	if classified := session.ScratchString(workflow.KeyClassifiedAs); classified != "" {
		category := models.Category(classified)
		if _, ok := o.verticals.Vertical(category); ok {
			return o.dispatch(ctx, session, category)
		}
		// OTHER or an unknown cached category: the session already received
		// its terminal handling; keep replaying it.
	}

	if session.State != "" && models.IsGlobalState(session.State) {
		return o.applyOutcome(session, models.CategoryOther,
			o.globalStateOutcome(ctx, session))
	}

	if session.UserMessageCount() >= o.cfg.MaxUnclassifiedMessages {
		o.logger.Warn("Unclassified message ceiling reached, escalating",
			zap.String("session", session.ID))
		session.Scratch[workflow.KeyClassifiedAs] = string(models.CategoryOther)
		return o.applyOutcome(session, models.CategoryOther, &workflow.Outcome{
			Messages: []models.Message{models.NewModelMessage(workflow.MsgHumanHandoff, workflow.ToolRequestHumanHelp)},
			Next:     models.StateHumanEscalation,
			ToolCall: workflow.ToolRequestHumanHelp,
			Scratch:  session.Scratch,
		})
	}

	return o.classifyAndDispatch(ctx, session)
}

func (o *Orchestrator) classifyAndDispatch(ctx context.Context, session *models.Session) *models.Reply {
	res := o.classifier.Classify(ctx, session.Transcript)

	if res.Next != "" {
		session.Scratch[workflow.KeyClassifiedAs] = string(models.CategoryOther)
		return o.applyOutcome(session, models.CategoryOther, &workflow.Outcome{
			Messages: res.Messages,
			Next:     res.Next,
			ToolCall: res.ToolCall,
			Scratch:  session.Scratch,
		})
	}

	if res.Category != models.CategoryOther {
		session.Scratch[workflow.KeyClassifiedAs] = string(res.Category)
		return o.dispatch(ctx, session, res.Category)
	}

	// No vertical won. On first contact offer the option list instead of the
	// conversational fallback; afterwards keep probing in free text.
	if !session.ScratchBool(workflow.KeySpecialListSent) && session.UserMessageCount() == 1 {
		session.Scratch[workflow.KeySpecialListSent] = true
		return o.applyOutcome(session, models.CategoryOther, &workflow.Outcome{
			Messages: []models.Message{models.NewModelMessage(workflow.MsgSpecialListDescription, workflow.ActionSendSpecialList)},
			ToolCall: workflow.ActionSendSpecialList,
			Scratch:  session.Scratch,
		})
	}
	return o.applyOutcome(session, models.CategoryOther, &workflow.Outcome{
		Messages: res.Messages,
		Scratch:  session.Scratch,
	})
}

// globalStateOutcome replays terminal handling for sessions that landed in a
// global state without a cached category (classifier-driven finish).
func (o *Orchestrator) globalStateOutcome(ctx context.Context, session *models.Session) *workflow.Outcome {
	if session.State == models.StateHumanEscalation {
		return &workflow.Outcome{
			Messages: []models.Message{models.NewModelMessage(workflow.MsgHumanHandoff, workflow.ToolRequestHumanHelp)},
			Next:     models.StateHumanEscalation,
			ToolCall: workflow.ToolRequestHumanHelp,
			Scratch:  session.Scratch,
		}
	}
	// CONVERSATION_FINISHED without a vertical: run the shared autopilot via
	// the assistant vertical's table, which registers the same handler.
	v, _ := o.verticals.Vertical(models.CategoryGeneralAssistant)
	turn := &workflow.Turn{
		SessionID:  session.ID,
		Transcript: session.Transcript,
		Scratch:    session.Scratch,
		Profile:    session.Profile,
	}
	return v.Handle(ctx, session.State, turn)
}

// dispatch runs the vertical state machine, following at most maxRedirects
// cross-vertical handoffs within the turn.
func (o *Orchestrator) dispatch(ctx context.Context, session *models.Session, category models.Category) *models.Reply {
	state := session.State
	var collected []models.Message

	for hop := 0; ; hop++ {
		vertical, ok := o.verticals.Vertical(category)
		if !ok {
			o.logger.Error("No vertical for category, escalating",
				zap.String("session", session.ID),
				zap.String("category", string(category)))
			return o.applyOutcome(session, category, &workflow.Outcome{
				Messages: []models.Message{models.NewModelMessage(workflow.MsgHumanHandoff, workflow.ToolRequestHumanHelp)},
				Next:     models.StateHumanEscalation,
				ToolCall: workflow.ToolRequestHumanHelp,
				Scratch:  session.Scratch,
			})
		}

		turn := &workflow.Turn{
			SessionID:  session.ID,
			Transcript: session.Transcript,
			Scratch:    session.Scratch,
			Profile:    session.Profile,
		}
		outcome := vertical.Handle(ctx, state, turn)

		if outcome.Redirect == "" || hop >= maxRedirects {
			if hop > 0 && outcome.Redirect != "" {
				o.logger.Warn("Redirect budget exhausted",
					zap.String("session", session.ID),
					zap.String("category", string(category)))
			}
			outcome.Messages = append(collected, outcome.Messages...)
			return o.applyOutcome(session, category, outcome)
		}

		o.logger.Info("Cross-vertical redirect",
			zap.String("session", session.ID),
			zap.String("from", string(category)),
			zap.String("to", string(outcome.Redirect)))
		collected = append(collected, outcome.Messages...)
		if outcome.Scratch != nil {
			session.Scratch = outcome.Scratch
		}
		category = outcome.Redirect
		session.Scratch[workflow.KeyClassifiedAs] = string(category)
		state = ""
	}
}

// applyOutcome folds a handler outcome into the session record and shapes the
// transport-facing reply. The session is mutated here only; handlers work on
// copies.
func (o *Orchestrator) applyOutcome(session *models.Session, category models.Category, outcome *workflow.Outcome) *models.Reply {
	if outcome.Scratch != nil {
		session.Scratch = outcome.Scratch
	}
	if outcome.Next != "" {
		session.State = outcome.Next
	}
	session.Transcript = append(session.Transcript, outcome.Messages...)

	reply := &models.Reply{
		SessionID:    session.ID,
		Messages:     outcome.Messages,
		ToolCall:     outcome.ToolCall,
		State:        session.State,
		ClassifiedAs: category,
	}
	if outcome.ToolCall == workflow.ActionSendVideo {
		if video, ok := session.Scratch[workflow.KeyVideoToSend].(map[string]any); ok {
			reply.Video = video
		}
	}
	return reply
}

// ResetSession archives the record under a tombstone id so the next message
// from the same counterparty starts a fresh conversation.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	archived := fmt.Sprintf("DELETED-%s-%s", sessionID, uuid.NewString()[:8])
	if err := o.store.RenameSession(ctx, sessionID, archived); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	o.logger.Info("Session reset", zap.String("session", sessionID), zap.String("archived", archived))
	return nil
}
