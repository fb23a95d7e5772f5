package orchestrator_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/classifier"
	"github.com/andestrans/cargobot/internal/export"
	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/orchestrator"
	"github.com/andestrans/cargobot/internal/storage"
	"github.com/andestrans/cargobot/internal/workflow"
)

type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := c.calls
	c.calls++
	if i >= len(c.errs) {
		i = len(c.errs) - 1
	}
	return c.responses[i], c.errs[i]
}

func classification(category string, confidence float64) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: "classify_interaction",
		Args: map[string]any{
			"categoryScores": []any{
				map[string]any{"category": category, "confidence": confidence, "rationale": "test"},
			},
			"primaryCategory": category,
		},
	}}}
}

func newTestEngine(t *testing.T, client llm.Client, store storage.Storage, cfg orchestrator.Config) *orchestrator.Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	loop := llm.NewLoop(llm.NewInvoker(client, llm.InvokerConfig{PrimaryModel: "test"}, logger), logger)
	verticals := workflow.NewRegistry(&workflow.Deps{
		Loop:     loop,
		Exporter: export.NewMemoryExporter(),
		Logger:   logger,
	})
	cls := classifier.NewClassifier(loop, 0.8, logger)
	return orchestrator.New(store, verticals, cls, cfg, logger)
}

func TestHandleTurnClassifiesAndDispatches(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{
			classification("SALES_LEAD", 0.9),
			{Text: "Could you share your NIT?"},
		},
		errs: []error{nil, nil},
	}
	store := storage.NewMemoryStorage()
	engine := newTestEngine(t, client, store, orchestrator.Config{})

	reply, err := engine.HandleTurn(context.Background(), "57300111", "I need a freight quote", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ClassifiedAs != models.CategorySalesLead {
		t.Fatalf("expected SALES_LEAD, got %s", reply.ClassifiedAs)
	}
	if len(reply.Messages) != 1 {
		t.Fatalf("expected one reply message, got %d", len(reply.Messages))
	}

	session, err := store.GetSession(context.Background(), "57300111")
	if err != nil || session == nil {
		t.Fatalf("expected the session to be persisted, err=%v", err)
	}
	if got := session.ScratchString(workflow.KeyClassifiedAs); got != "SALES_LEAD" {
		t.Fatalf("expected the category cached on scratch, got %q", got)
	}
	if len(session.Transcript) != 2 {
		t.Fatalf("expected user + model messages persisted, got %d", len(session.Transcript))
	}
}

func TestHandleTurnSoftDeletedSessionRestarts(t *testing.T) {
	store := storage.NewMemoryStorage()
	stale := models.NewSession("57300222")
	stale.Transcript = []models.Message{models.NewUserMessage("old"), models.NewUserMessage("older")}
	stale.State = "AWAITING_TAX_ID"
	stale.Scratch[workflow.KeyClassifiedAs] = "SALES_LEAD"
	stale.Deleted = true
	if err := store.UpsertSession(context.Background(), stale); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &scriptedClient{
		responses: []*llm.Response{
			classification("SUPPLIER", 0.95),
			{Text: "Tell me about your company"},
		},
		errs: []error{nil, nil},
	}
	engine := newTestEngine(t, client, store, orchestrator.Config{})

	reply, err := engine.HandleTurn(context.Background(), "57300222", "I sell tires", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ClassifiedAs != models.CategorySupplier {
		t.Fatalf("expected a fresh classification, got %s", reply.ClassifiedAs)
	}

	session, _ := store.GetSession(context.Background(), "57300222")
	if session.Deleted {
		t.Fatal("expected the restarted session to be live")
	}
	if len(session.Transcript) != 2 {
		t.Fatalf("expected the old transcript dropped, got %d messages", len(session.Transcript))
	}
}

func TestHandleTurnReclassificationClearsRouting(t *testing.T) {
	store := storage.NewMemoryStorage()
	session := models.NewSession("57300333")
	session.Transcript = []models.Message{models.NewUserMessage("done earlier")}
	session.State = models.StateAwaitingReclassification
	session.Scratch[workflow.KeyClassifiedAs] = "JOB_CANDIDATE"
	session.Scratch[workflow.KeySheetRowAdded] = true
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &scriptedClient{
		responses: []*llm.Response{
			classification("SALES_LEAD", 0.9),
			{Text: "Could you share your NIT?"},
		},
		errs: []error{nil, nil},
	}
	engine := newTestEngine(t, client, store, orchestrator.Config{})

	reply, err := engine.HandleTurn(context.Background(), "57300333", "now I need a quote", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ClassifiedAs != models.CategorySalesLead {
		t.Fatalf("expected reclassification to SALES_LEAD, got %s", reply.ClassifiedAs)
	}

	persisted, _ := store.GetSession(context.Background(), "57300333")
	if persisted.ScratchBool(workflow.KeySheetRowAdded) {
		t.Fatal("expected the export flag cleared for the new flow")
	}
	if len(persisted.Transcript) != 2 {
		t.Fatalf("expected only the new exchange in the transcript, got %d messages", len(persisted.Transcript))
	}
	if persisted.Transcript[0].Text != "now I need a quote" {
		t.Fatalf("expected the old conversation dropped, transcript starts with %q", persisted.Transcript[0].Text)
	}
}

func TestHandleTurnUnclassifiedCeilingEscalates(t *testing.T) {
	store := storage.NewMemoryStorage()
	session := models.NewSession("57300444")
	for i := 0; i < 9; i++ {
		session.Transcript = append(session.Transcript, models.NewUserMessage("??"))
	}
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// The ceiling fires before any model call; a scripted error would fail
	// the test if the engine still tried to classify.
	client := &scriptedClient{responses: []*llm.Response{nil}, errs: []error{context.Canceled}}
	engine := newTestEngine(t, client, store, orchestrator.Config{MaxUnclassifiedMessages: 10})

	reply, err := engine.HandleTurn(context.Background(), "57300444", "still unclear", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.State != models.StateHumanEscalation {
		t.Fatalf("expected escalation at the ceiling, got %q", reply.State)
	}
	if reply.ClassifiedAs != models.CategoryOther {
		t.Fatalf("expected OTHER, got %s", reply.ClassifiedAs)
	}
	if client.calls != 0 {
		t.Fatalf("expected no model calls, got %d", client.calls)
	}
}

func TestHandleTurnFirstContactSendsOptionList(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{
			classification("SALES_LEAD", 0.4),
			{Text: "What do you need today?"},
		},
		errs: []error{nil, nil},
	}
	store := storage.NewMemoryStorage()
	engine := newTestEngine(t, client, store, orchestrator.Config{})

	reply, err := engine.HandleTurn(context.Background(), "57300555", "hola", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ToolCall != workflow.ActionSendSpecialList {
		t.Fatalf("expected the option list on first contact, got %q", reply.ToolCall)
	}

	session, _ := store.GetSession(context.Background(), "57300555")
	if !session.ScratchBool(workflow.KeySpecialListSent) {
		t.Fatal("expected the list flag persisted")
	}
}

func TestHandleTurnRedirectSwitchesVertical(t *testing.T) {
	store := storage.NewMemoryStorage()
	session := models.NewSession("57300666")
	session.Transcript = []models.Message{models.NewUserMessage("hi")}
	session.State = "AWAITING_RESOLUTION"
	session.Scratch[workflow.KeyClassifiedAs] = "ACTIVE_CUSTOMER"
	session.Scratch["tax_id"] = "900123456"
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	client := &scriptedClient{
		responses: []*llm.Response{
			// Customer flow decides this is a new quote.
			{ToolCalls: []llm.ToolCall{{Name: "is_quote_query", Args: map[string]any{"quote": true}}}},
			// The sales flow then asks for remaining data.
			{Text: "Could you confirm your NIT?"},
		},
		errs: []error{nil, nil},
	}
	engine := newTestEngine(t, client, store, orchestrator.Config{})

	reply, err := engine.HandleTurn(context.Background(), "57300666", "I need a new route quoted", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ClassifiedAs != models.CategorySalesLead {
		t.Fatalf("expected the turn to end in SALES_LEAD, got %s", reply.ClassifiedAs)
	}

	persisted, _ := store.GetSession(context.Background(), "57300666")
	if got := persisted.ScratchString(workflow.KeyClassifiedAs); got != "SALES_LEAD" {
		t.Fatalf("expected the cached category switched, got %q", got)
	}
}

func TestHandleTurnAssistantModeSkipsClassifier(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{{Text: "We cover national and Andean routes."}},
		errs:      []error{nil},
	}
	store := storage.NewMemoryStorage()
	engine := newTestEngine(t, client, store, orchestrator.Config{Mode: orchestrator.ModeAssistant})

	reply, err := engine.HandleTurn(context.Background(), "57300777", "what routes do you cover?", nil)
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ClassifiedAs != models.CategoryGeneralAssistant {
		t.Fatalf("expected the assistant vertical, got %s", reply.ClassifiedAs)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single model call, got %d", client.calls)
	}
}

func TestResetSessionArchivesRecord(t *testing.T) {
	store := storage.NewMemoryStorage()
	session := models.NewSession("57300888")
	session.Transcript = []models.Message{models.NewUserMessage("hi")}
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	engine := newTestEngine(t, &scriptedClient{responses: []*llm.Response{nil}, errs: []error{nil}}, store, orchestrator.Config{})
	if err := engine.ResetSession(context.Background(), "57300888"); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}

	gone, err := store.GetSession(context.Background(), "57300888")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gone != nil {
		t.Fatal("expected the original id to be free after reset")
	}
}
