// Package workflow implements the per-vertical conversation state machines.
// Each vertical owns a small state enum and a dispatch table from state to
// handler, built once at startup and immutable afterwards.
package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/export"
	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

// Scratch keys shared across verticals.
const (
	KeyClassifiedAs          = "classifiedAs"
	KeySheetRowAdded         = "sheet_row_added"
	KeySpecialListSent       = "special_list_sent"
	KeyTextListSentToWeb     = "text_list_sent_to_web"
	KeyMessagesAfterFinished = "messages_after_finished_count"
	KeyVideoToSend           = "video_to_send"
)

// Turn is the read-only view of a session a handler works from. Handlers
// return what should change instead of mutating the record.
type Turn struct {
	SessionID  string
	Transcript []models.Message
	Scratch    map[string]any
	Profile    map[string]string
}

// CloneScratch copies the scratch map so handlers can add keys without
// touching the loaded record.
func (t *Turn) CloneScratch() map[string]any {
	out := make(map[string]any, len(t.Scratch))
	for k, v := range t.Scratch {
		out[k] = v
	}
	return out
}

// Outcome is everything a handler decides for one turn: reply messages, the
// next state, an optional special action tag for the transport, the updated
// scratch, and optionally a redirect to a different vertical (consumed by the
// orchestrator's bounded re-dispatch loop, never applied same-turn here).
type Outcome struct {
	Messages []models.Message
	Next     string
	ToolCall string
	Scratch  map[string]any
	Redirect models.Category
}

type Handler func(ctx context.Context, turn *Turn) (*Outcome, error)

// Deps carries the collaborators handlers are allowed to touch: the tool-call
// loop and the idempotent export write. Everything else is off limits.
type Deps struct {
	Loop      *llm.Loop
	Exporter  export.Exporter
	Directory export.Directory
	Retriever Retriever
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// AppendRowOnce performs the at-most-once export write: a set sheet_row_added
// flag means the row is already on the sheet and the call is a no-op. Export
// failures are logged and swallowed; they never fail the turn and leave the
// flag unset so a later turn may retry.
func (d *Deps) AppendRowOnce(ctx context.Context, scratch map[string]any, sheet string, row []string) {
	if added, _ := scratch[KeySheetRowAdded].(bool); added {
		d.Logger.Info("Row already exported, skipping", zap.String("sheet", sheet))
		return
	}
	if d.Exporter == nil {
		d.Logger.Warn("No export target configured, skipping row", zap.String("sheet", sheet))
		return
	}
	if err := d.Exporter.AppendRow(ctx, sheet, row); err != nil {
		d.Logger.Error("Failed to export row", zap.String("sheet", sheet), zap.Error(err))
		return
	}
	scratch[KeySheetRowAdded] = true
}

// Vertical is one business conversation flow: a category, an initial state,
// and an immutable state dispatch table.
type Vertical struct {
	Category models.Category
	Initial  string
	handlers map[string]Handler
	logger   *zap.Logger
}

func newVertical(category models.Category, initial string, logger *zap.Logger, handlers map[string]Handler) *Vertical {
	return &Vertical{Category: category, Initial: initial, handlers: handlers, logger: logger}
}

func (v *Vertical) ValidState(state string) bool {
	if state == "" || models.IsGlobalState(state) {
		return true
	}
	_, ok := v.handlers[state]
	return ok
}

// Handle dispatches one turn. It never returns an error to the caller:
// handler failures and unknown states always resolve to HUMAN_ESCALATION
// with the fixed handoff message, the system-wide safety net.
func (v *Vertical) Handle(ctx context.Context, state string, turn *Turn) *Outcome {
	if state == "" {
		state = v.Initial
	}
	if state == models.StateHumanEscalation {
		// Terminal; only an operator exits it out-of-band.
		return escalationOutcome(turn.CloneScratch())
	}

	handler, ok := v.handlers[state]
	if !ok {
		v.logger.Warn("Unhandled state, escalating to human",
			zap.String("category", string(v.Category)),
			zap.String("state", state))
		return escalationOutcome(turn.CloneScratch())
	}

	outcome, err := handler(ctx, turn)
	if err != nil {
		v.logger.Error("Workflow handler failed, escalating to human",
			zap.String("category", string(v.Category)),
			zap.String("state", state),
			zap.Error(err))
		return escalationOutcome(turn.CloneScratch())
	}
	return outcome
}

func escalationOutcome(scratch map[string]any) *Outcome {
	return &Outcome{
		Messages: []models.Message{models.NewModelMessage(MsgHumanHandoff, ToolRequestHumanHelp)},
		Next:     models.StateHumanEscalation,
		ToolCall: ToolRequestHumanHelp,
		Scratch:  scratch,
	}
}

// Registry holds every vertical, keyed by category. Built once at startup.
type Registry struct {
	verticals map[models.Category]*Vertical
}

func NewRegistry(deps *Deps) *Registry {
	return &Registry{verticals: map[models.Category]*Vertical{
		models.CategorySalesLead:        newLeadVertical(deps),
		models.CategoryActiveCustomer:   newCustomerVertical(deps),
		models.CategoryCarrier:          newCarrierVertical(deps),
		models.CategorySupplier:         newSupplierVertical(deps),
		models.CategoryJobCandidate:     newCandidateVertical(deps),
		models.CategoryStaff:            newStaffVertical(deps),
		models.CategoryGeneralAssistant: newAssistantVertical(deps),
	}}
}

func (r *Registry) Vertical(category models.Category) (*Vertical, bool) {
	v, ok := r.verticals[category]
	return v, ok
}
