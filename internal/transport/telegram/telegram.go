// Package telegram drives the conversation engine from a Telegram long-poll
// loop. Used for internal testing of the flows without a WhatsApp instance.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/workflow"
)

// Engine is the conversation entry point the transport drives.
type Engine interface {
	HandleTurn(ctx context.Context, sessionID, text string, profile map[string]string) (*models.Reply, error)
	ResetSession(ctx context.Context, sessionID string) error
}

type Bot struct {
	api    *tgbotapi.BotAPI
	engine Engine
	logger *zap.Logger

	mu     sync.Mutex
	queues map[int64]chan *tgbotapi.Message
}

func New(token string, engine Engine, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:    api,
		engine: engine,
		logger: logger,
		queues: make(map[int64]chan *tgbotapi.Message),
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		b.enqueue(update.Message)
	}

	return nil
}

// enqueue hands the message to the chat's worker goroutine. Turns for one
// chat run strictly in order so two quick messages never race on the same
// session record; different chats still proceed in parallel.
func (b *Bot) enqueue(message *tgbotapi.Message) {
	b.mu.Lock()
	queue, ok := b.queues[message.Chat.ID]
	if !ok {
		queue = make(chan *tgbotapi.Message, 16)
		b.queues[message.Chat.ID] = queue
		go func() {
			for m := range queue {
				b.handleMessage(m)
			}
		}()
	}
	b.mu.Unlock()
	queue <- message
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	text := message.Text
	if text == "" {
		b.sendMessage(message.Chat.ID, "I can only read text messages for now.")
		return
	}

	sessionID := "tg-" + strconv.FormatInt(message.Chat.ID, 10)
	profile := map[string]string{"name": message.From.FirstName}

	reply, err := b.engine.HandleTurn(ctx, sessionID, text, profile)
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	b.deliver(message.Chat.ID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.sendMessage(message.Chat.ID, "Welcome to the Andes Trans assistant. Tell me what you need and I will route you to the right team.")
	case "reset":
		sessionID := "tg-" + strconv.FormatInt(message.Chat.ID, 10)
		if err := b.engine.ResetSession(ctx, sessionID); err != nil {
			b.logger.Error("Failed to reset session",
				zap.Error(err),
				zap.Int64("chat_id", message.Chat.ID))
			b.sendMessage(message.Chat.ID, "Sorry, I couldn't reset the conversation.")
			return
		}
		b.sendMessage(message.Chat.ID, "Done. The conversation was reset.")
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Just write your request in plain text.")
	}
}

// deliver renders the reply, expanding the option list and video actions
// into plain Telegram messages.
func (b *Bot) deliver(chatID int64, reply *models.Reply) {
	switch reply.ToolCall {
	case workflow.ActionSendSpecialList:
		var sb strings.Builder
		sb.WriteString(workflow.MsgSpecialListDescription)
		for i, opt := range workflow.SpecialListOptions {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, opt)
		}
		b.sendMessage(chatID, sb.String())
		return
	case workflow.ActionSendVideo:
		for _, m := range reply.Messages {
			b.sendMessage(chatID, m.Text)
		}
		if caption, _ := reply.Video["caption"].(string); caption != "" {
			b.sendMessage(chatID, caption)
		}
		return
	}
	for _, m := range reply.Messages {
		b.sendMessage(chatID, m.Text)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
