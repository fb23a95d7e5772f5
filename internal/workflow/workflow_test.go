package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/export"
	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/models"
)

type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := c.calls
	c.calls++
	c.requests = append(c.requests, req)
	if i >= len(c.errs) {
		i = len(c.errs) - 1
	}
	return c.responses[i], c.errs[i]
}

func newTestDeps(client llm.Client, exporter export.Exporter) *Deps {
	logger := zap.NewNop()
	return &Deps{
		Loop:     llm.NewLoop(llm.NewInvoker(client, llm.InvokerConfig{PrimaryModel: "test"}, logger), logger),
		Exporter: exporter,
		Logger:   logger,
		Now:      func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Text: text}
}

func toolResponse(name string, args map[string]any) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{Name: name, Args: args}}}
}

func TestHandleUnknownStateEscalates(t *testing.T) {
	deps := newTestDeps(&scriptedClient{responses: []*llm.Response{textResponse("hi")}, errs: []error{nil}}, nil)
	v := newLeadVertical(deps)

	out := v.Handle(context.Background(), "NO_SUCH_STATE", &Turn{Scratch: map[string]any{}})
	if out.Next != models.StateHumanEscalation {
		t.Fatalf("expected escalation, got %q", out.Next)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != MsgHumanHandoff {
		t.Fatal("expected the fixed handoff message")
	}
}

func TestHandleEmptyStateUsesInitial(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("please share your NIT")}, errs: []error{nil}}
	v := newLeadVertical(newTestDeps(client, nil))

	out := v.Handle(context.Background(), "", &Turn{
		Transcript: []models.Message{models.NewUserMessage("I need a quote")},
		Scratch:    map[string]any{},
	})
	if out.Next != StateLeadAwaitingTaxID {
		t.Fatalf("expected the initial state, got %q", out.Next)
	}
}

func TestAppendRowOnceSkipsWhenFlagSet(t *testing.T) {
	exporter := export.NewMemoryExporter()
	deps := newTestDeps(nil, exporter)

	scratch := map[string]any{KeySheetRowAdded: true}
	deps.AppendRowOnce(context.Background(), scratch, "SHEET", []string{"a"})
	if rows := exporter.Rows("SHEET"); len(rows) != 0 {
		t.Fatalf("expected no export when the flag is set, got %d rows", len(rows))
	}
}

func TestAppendRowOnceWritesAndMarks(t *testing.T) {
	exporter := export.NewMemoryExporter()
	deps := newTestDeps(nil, exporter)

	scratch := map[string]any{}
	deps.AppendRowOnce(context.Background(), scratch, "SHEET", []string{"a", "b"})
	if rows := exporter.Rows("SHEET"); len(rows) != 1 {
		t.Fatalf("expected one exported row, got %d", len(rows))
	}
	if added, _ := scratch[KeySheetRowAdded].(bool); !added {
		t.Fatal("expected the idempotency flag to be set")
	}

	deps.AppendRowOnce(context.Background(), scratch, "SHEET", []string{"c"})
	if rows := exporter.Rows("SHEET"); len(rows) != 1 {
		t.Fatalf("expected the second write to be skipped, got %d rows", len(rows))
	}
}

func TestAutopilotCeilingEscalates(t *testing.T) {
	deps := newTestDeps(nil, nil) // ceiling check fires before any model call
	handler := autopilotHandler(deps)

	out, err := handler(context.Background(), &Turn{
		Scratch: map[string]any{KeyMessagesAfterFinished: float64(3)},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out.Next != models.StateHumanEscalation {
		t.Fatalf("expected escalation at the ceiling, got %q", out.Next)
	}
}

func TestAutopilotNewNeedRestartsClassification(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{toolResponse(ToolNewInteractionRequired, map[string]any{})},
		errs:      []error{nil},
	}
	handler := autopilotHandler(newTestDeps(client, nil))

	out, err := handler(context.Background(), &Turn{
		Transcript: []models.Message{models.NewUserMessage("now I need something else")},
		Scratch:    map[string]any{},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out.Next != models.StateAwaitingReclassification {
		t.Fatalf("expected reclassification, got %q", out.Next)
	}
	if out.ToolCall != ToolNewInteractionRequired {
		t.Fatalf("unexpected tool call %q", out.ToolCall)
	}
}

func TestLeadTaxIDLooksUpDirectory(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{toolResponse("capture_tax_id", map[string]any{"tax_id": "900123456"})},
		errs:      []error{nil},
	}
	deps := newTestDeps(client, export.NewMemoryExporter())
	deps.Directory = &export.StaticDirectory{Entries: map[string]map[string]string{
		"900123456": {
			"status":      "ACTIVE",
			"agent_name":  "maria lopez",
			"agent_email": "maria@andestrans.co",
			"agent_phone": "+573001112233",
		},
	}}
	v := newLeadVertical(deps)

	out := v.Handle(context.Background(), StateLeadAwaitingTaxID, &Turn{
		Transcript: []models.Message{models.NewUserMessage("our NIT is 900123456")},
		Scratch:    map[string]any{},
	})
	if out.Next != StateLeadAwaitingRemainingInfo {
		t.Fatalf("expected AWAITING_REMAINING_INFO, got %q", out.Next)
	}
	if got, _ := out.Scratch["tax_id_status"].(string); got != "ACTIVE" {
		t.Fatalf("expected the CRM status on scratch, got %q", got)
	}
}

func TestLeadValidationRejectionFinishes(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{toolResponse("validate_goods", map[string]any{"goods_type": "fireworks"})},
		errs:      []error{nil},
	}
	v := newLeadVertical(newTestDeps(client, nil))

	out := v.Handle(context.Background(), StateLeadAwaitingTaxID, &Turn{
		Transcript: []models.Message{models.NewUserMessage("I want to ship fireworks")},
		Scratch:    map[string]any{},
	})
	if out.Next != models.StateConversationFinished {
		t.Fatalf("expected the rejection to finish the conversation, got %q", out.Next)
	}
	if out.ToolCall != "validate_goods" {
		t.Fatalf("unexpected tool call %q", out.ToolCall)
	}
}

func TestCustomerQuoteRedirectsToSales(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{toolResponse("is_quote_query", map[string]any{"quote": true})},
		errs:      []error{nil},
	}
	v := newCustomerVertical(newTestDeps(client, nil))

	out := v.Handle(context.Background(), StateCustomerAwaitingResolution, &Turn{
		Transcript: []models.Message{models.NewUserMessage("I also need a quote for a new route")},
		Scratch:    map[string]any{"tax_id": "900123456"},
	})
	if out.Redirect != models.CategorySalesLead {
		t.Fatalf("expected a redirect to SALES_LEAD, got %q", out.Redirect)
	}
}

func TestCarrierInfoExportsAndQueuesVideo(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{toolResponse("save_carrier_info", map[string]any{
			"driver_name":  "Juan Perez",
			"plate":        "ABC123",
			"vehicle_type": "tractomula",
		})},
		errs: []error{nil},
	}
	exporter := export.NewMemoryExporter()
	v := newCarrierVertical(newTestDeps(client, exporter))

	out := v.Handle(context.Background(), StateCarrierAwaitingInfo, &Turn{
		Transcript: []models.Message{models.NewUserMessage("Juan Perez, ABC123, tractomula")},
		Scratch:    map[string]any{"carrier_request_type": "ENROLLMENT"},
		Profile:    map[string]string{"phoneNumber": "573001112233"},
	})
	if out.Next != StateCarrierVideoSent {
		t.Fatalf("expected VIDEO_SENT, got %q", out.Next)
	}
	if out.ToolCall != ActionSendVideo {
		t.Fatalf("expected the video action, got %q", out.ToolCall)
	}
	if rows := exporter.Rows(sheetCarriers); len(rows) != 1 {
		t.Fatalf("expected one exported row, got %d", len(rows))
	}
	video, _ := out.Scratch[KeyVideoToSend].(map[string]any)
	if video["video_file"] != carrierEnrollVideo {
		t.Fatalf("expected the enrollment video queued, got %v", video)
	}
}

func TestAssistantPromptCarriesRetrievedContext(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("We cover the main Colombian cities.")}, errs: []error{nil}}
	deps := newTestDeps(client, nil)
	deps.Retriever = &StaticRetriever{Document: "Coverage: Bogota, Medellin, Cali and 37 more cities."}
	v := newAssistantVertical(deps)

	out := v.Handle(context.Background(), "", &Turn{
		Transcript: []models.Message{models.NewUserMessage("Which cities do you cover?")},
		Scratch:    map[string]any{},
	})
	if out.Next != StateAssistantAnswering {
		t.Fatalf("expected the assistant to keep answering, got %q", out.Next)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(client.requests))
	}
	if !strings.Contains(client.requests[0].SystemPrompt, "Coverage: Bogota, Medellin, Cali and 37 more cities.") {
		t.Fatalf("expected the retrieved document in the system prompt, got %q", client.requests[0].SystemPrompt)
	}
}
