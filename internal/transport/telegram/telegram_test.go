package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
)

// serialEngine records which sessions are mid-turn so a test can detect two
// turns for the same session running at once.
type serialEngine struct {
	mu       sync.Mutex
	inFlight map[string]bool
	overlap  bool
	handled  []string
	want     int
	done     chan struct{}
}

func newSerialEngine(want int) *serialEngine {
	return &serialEngine{
		inFlight: make(map[string]bool),
		want:     want,
		done:     make(chan struct{}),
	}
}

func (e *serialEngine) HandleTurn(ctx context.Context, sessionID, text string, profile map[string]string) (*models.Reply, error) {
	e.mu.Lock()
	if e.inFlight[sessionID] {
		e.overlap = true
	}
	e.inFlight[sessionID] = true
	e.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	e.mu.Lock()
	e.inFlight[sessionID] = false
	e.handled = append(e.handled, sessionID+"/"+text)
	if len(e.handled) == e.want {
		close(e.done)
	}
	e.mu.Unlock()
	return &models.Reply{}, nil
}

func (e *serialEngine) ResetSession(ctx context.Context, sessionID string) error {
	return nil
}

func chatMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{FirstName: "Ana"},
	}
}

func TestEnqueueSerializesTurnsPerChat(t *testing.T) {
	engine := newSerialEngine(5)
	bot := &Bot{
		engine: engine,
		logger: zap.NewNop(),
		queues: make(map[int64]chan *tgbotapi.Message),
	}

	for i := 0; i < 3; i++ {
		bot.enqueue(chatMessage(1, fmt.Sprintf("m%d", i)))
	}
	bot.enqueue(chatMessage(2, "m0"))
	bot.enqueue(chatMessage(2, "m1"))

	select {
	case <-engine.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the queued messages")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.overlap {
		t.Fatal("two turns for the same chat ran concurrently")
	}

	var chat1 []string
	for _, h := range engine.handled {
		if strings.HasPrefix(h, "tg-1/") {
			chat1 = append(chat1, h)
		}
	}
	want := []string{"tg-1/m0", "tg-1/m1", "tg-1/m2"}
	if len(chat1) != len(want) {
		t.Fatalf("expected %d chat 1 turns, got %v", len(want), chat1)
	}
	for i := range want {
		if chat1[i] != want[i] {
			t.Fatalf("chat 1 turns out of order: %v", chat1)
		}
	}
}
