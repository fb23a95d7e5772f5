package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/storage"
	"github.com/andestrans/cargobot/internal/workflow"
)

type fakeEngine struct {
	reply     *models.Reply
	lastText  string
	lastID    string
	turnCalls int
	resets    []string
}

func (e *fakeEngine) HandleTurn(ctx context.Context, sessionID, text string, profile map[string]string) (*models.Reply, error) {
	e.turnCalls++
	e.lastID = sessionID
	e.lastText = text
	if e.reply != nil {
		return e.reply, nil
	}
	return &models.Reply{SessionID: sessionID}, nil
}

func (e *fakeEngine) ResetSession(ctx context.Context, sessionID string) error {
	e.resets = append(e.resets, sessionID)
	return nil
}

type fakeSender struct {
	texts  []string
	lists  int
	videos []string
}

func (s *fakeSender) SendText(ctx context.Context, number, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSender) SendList(ctx context.Context, number, title, description, buttonText string, rows []ListRow) error {
	s.lists++
	return nil
}

func (s *fakeSender) SendVideo(ctx context.Context, number, mediaURL, caption string) error {
	s.videos = append(s.videos, mediaURL)
	return nil
}

func newTestHandler(engine *fakeEngine, store storage.Storage, sender *fakeSender) *Handler {
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	return NewHandler(engine, store, sender, "https://media.example.com/", zap.NewNop())
}

func postEvent(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func textEvent(number, text, source string) string {
	return `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "` + number + `@s.whatsapp.net", "fromMe": false},
			"pushName": "Pablo",
			"source": "` + source + `",
			"message": {"conversation": "` + text + `"}
		}
	}`
}

func TestWebhookIgnoresOwnMessages(t *testing.T) {
	engine := &fakeEngine{}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	rec := postEvent(t, h, `{
		"event": "messages.upsert",
		"data": {"key": {"remoteJid": "573001@s.whatsapp.net", "fromMe": true},
			"message": {"conversation": "hi"}}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.turnCalls != 0 {
		t.Fatal("expected own messages to be ignored")
	}
}

func TestWebhookNonTextGetsNotice(t *testing.T) {
	engine := &fakeEngine{}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	postEvent(t, h, `{
		"event": "messages.upsert",
		"data": {"key": {"remoteJid": "573001@s.whatsapp.net", "fromMe": false},
			"message": {}}
	}`)
	if engine.turnCalls != 0 {
		t.Fatal("expected no engine call for non-text messages")
	}
	if len(sender.texts) != 1 || sender.texts[0] != msgNonTextNotice {
		t.Fatalf("expected the non-text notice, got %v", sender.texts)
	}
}

func TestWebhookResetKeyword(t *testing.T) {
	engine := &fakeEngine{}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	postEvent(t, h, textEvent("573001", "reset", "android"))
	if len(engine.resets) != 1 || engine.resets[0] != "573001" {
		t.Fatalf("expected a reset for the session, got %v", engine.resets)
	}
	if engine.turnCalls != 0 {
		t.Fatal("expected RESET to bypass the engine")
	}
	if len(sender.texts) != 1 || sender.texts[0] != msgResetDone {
		t.Fatalf("expected the reset confirmation, got %v", sender.texts)
	}
}

func TestWebhookRemapsNumericListChoice(t *testing.T) {
	store := storage.NewMemoryStorage()
	session := models.NewSession("573001")
	session.Scratch[workflow.KeyTextListSentToWeb] = true
	if err := store.UpsertSession(context.Background(), session); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	engine := &fakeEngine{}
	sender := &fakeSender{}
	h := newTestHandler(engine, store, sender)

	postEvent(t, h, textEvent("573001", "2", "web"))
	if engine.lastText != workflow.SpecialListOptions[1] {
		t.Fatalf("expected the option text, engine got %q", engine.lastText)
	}

	persisted, _ := store.GetSession(context.Background(), "573001")
	if persisted.ScratchBool(workflow.KeyTextListSentToWeb) {
		t.Fatal("expected the remap flag cleared")
	}
}

func TestWebhookNumberPassedThroughWithoutFlag(t *testing.T) {
	engine := &fakeEngine{}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	postEvent(t, h, textEvent("573001", "2", "web"))
	if engine.lastText != "2" {
		t.Fatalf("expected the raw text without the flag, got %q", engine.lastText)
	}
}

func TestWebhookSpecialListForWebClient(t *testing.T) {
	store := storage.NewMemoryStorage()
	if err := store.UpsertSession(context.Background(), models.NewSession("573001")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	engine := &fakeEngine{reply: &models.Reply{
		SessionID: "573001",
		ToolCall:  workflow.ActionSendSpecialList,
	}}
	sender := &fakeSender{}
	h := newTestHandler(engine, store, sender)

	postEvent(t, h, textEvent("573001", "hola", "web"))
	if sender.lists != 0 {
		t.Fatal("expected no interactive list for web clients")
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "1. ") {
		t.Fatalf("expected a numbered text list, got %v", sender.texts)
	}

	persisted, _ := store.GetSession(context.Background(), "573001")
	if !persisted.ScratchBool(workflow.KeyTextListSentToWeb) {
		t.Fatal("expected the remap flag set for the next turn")
	}
}

func TestWebhookSpecialListForMobileClient(t *testing.T) {
	engine := &fakeEngine{reply: &models.Reply{
		SessionID: "573001",
		ToolCall:  workflow.ActionSendSpecialList,
	}}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	postEvent(t, h, textEvent("573001", "hola", "android"))
	if sender.lists != 1 {
		t.Fatalf("expected one interactive list, got %d", sender.lists)
	}
	if len(sender.texts) != 0 {
		t.Fatalf("expected no plain text alongside the list, got %v", sender.texts)
	}
}

func TestWebhookVideoAction(t *testing.T) {
	engine := &fakeEngine{reply: &models.Reply{
		SessionID: "573001",
		ToolCall:  workflow.ActionSendVideo,
		Messages:  []models.Message{models.NewModelMessage("here it comes")},
		Video:     map[string]any{"video_file": "carrier_enrollment.mp4", "caption": "steps"},
	}}
	sender := &fakeSender{}
	h := newTestHandler(engine, nil, sender)

	postEvent(t, h, textEvent("573001", "ready", "android"))
	if len(sender.videos) != 1 || sender.videos[0] != "https://media.example.com/carrier_enrollment.mp4" {
		t.Fatalf("expected the bucket video URL, got %v", sender.videos)
	}
	if len(sender.texts) != 1 {
		t.Fatalf("expected the accompanying text, got %v", sender.texts)
	}
}

func TestTypingDelayClamps(t *testing.T) {
	if d := typingDelay("hi"); d != 200 {
		t.Fatalf("expected the minimum delay, got %d", d)
	}
	if d := typingDelay(strings.Repeat("x", 500)); d != 2500 {
		t.Fatalf("expected the maximum delay, got %d", d)
	}
	mid := typingDelay(strings.Repeat("x", 150))
	if mid <= 200 || mid >= 2500 {
		t.Fatalf("expected a delay between the bounds, got %d", mid)
	}
	if a, b := typingDelay(strings.Repeat("á", 150)), typingDelay(strings.Repeat("a", 150)); a != b {
		t.Fatalf("expected accented text to pace by characters, got %d vs %d", a, b)
	}
}
