// Package webhook receives WhatsApp events from an Evolution API instance
// and feeds them to the conversation engine.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
	"github.com/andestrans/cargobot/internal/storage"
	"github.com/andestrans/cargobot/internal/workflow"
)

const resetKeyword = "RESET"

const (
	msgNonTextNotice = "For now I can only read text messages. Could you type your request?"
	msgResetDone     = "Done. Your conversation was reset; write me whenever you want to start again."
	listButtonText   = "See options"
)

// Engine is the conversation entry point the transport drives.
type Engine interface {
	HandleTurn(ctx context.Context, sessionID, text string, profile map[string]string) (*models.Reply, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// Sender is the outbound side of the WhatsApp gateway.
type Sender interface {
	SendText(ctx context.Context, number, text string) error
	SendList(ctx context.Context, number, title, description, buttonText string, rows []ListRow) error
	SendVideo(ctx context.Context, number, mediaURL, caption string) error
}

type Handler struct {
	engine    Engine
	store     storage.Storage
	sender    Sender
	bucketURL string
	logger    *zap.Logger
}

func NewHandler(engine Engine, store storage.Storage, sender Sender, bucketURL string, logger *zap.Logger) *Handler {
	return &Handler{
		engine:    engine,
		store:     store,
		sender:    sender,
		bucketURL: strings.TrimRight(bucketURL, "/"),
		logger:    logger,
	}
}

// Evolution API webhook payload, reduced to the fields we read.
type event struct {
	Event string    `json:"event"`
	Data  eventData `json:"data"`
}

type eventData struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	PushName string  `json:"pushName"`
	Source   string  `json:"source"`
	Message  message `json:"message"`
}

type message struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ListResponseMessage *struct {
		Title             string `json:"title"`
		SingleSelectReply *struct {
			SelectedRowID string `json:"selectedRowId"`
		} `json:"singleSelectReply"`
	} `json:"listResponseMessage"`
}

func (m *message) text() string {
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "" {
		return m.ExtendedTextMessage.Text
	}
	if m.ListResponseMessage != nil {
		if m.ListResponseMessage.Title != "" {
			return m.ListResponseMessage.Title
		}
		if m.ListResponseMessage.SingleSelectReply != nil {
			return m.ListResponseMessage.SingleSelectReply.SelectedRowID
		}
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.logger.Warn("Undecodable webhook payload", zap.Error(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if ev.Event != "messages.upsert" || ev.Data.Key.FromMe {
		writeOK(w)
		return
	}

	number := strings.SplitN(ev.Data.Key.RemoteJid, "@", 2)[0]
	if number == "" {
		writeOK(w)
		return
	}
	ctx := r.Context()

	text := strings.TrimSpace(ev.Data.Message.text())
	if text == "" {
		h.send(ctx, number, msgNonTextNotice)
		writeOK(w)
		return
	}

	if strings.EqualFold(text, resetKeyword) {
		if err := h.engine.ResetSession(ctx, number); err != nil {
			h.logger.Error("Session reset failed", zap.String("number", number), zap.Error(err))
			http.Error(w, "reset failed", http.StatusInternalServerError)
			return
		}
		h.send(ctx, number, msgResetDone)
		writeOK(w)
		return
	}

	text = h.remapListChoice(ctx, number, text)

	profile := map[string]string{"phoneNumber": number}
	if ev.Data.PushName != "" {
		profile["name"] = ev.Data.PushName
	}

	reply, err := h.engine.HandleTurn(ctx, number, text, profile)
	if err != nil {
		h.logger.Error("Turn handling failed", zap.String("number", number), zap.Error(err))
		http.Error(w, "engine error", http.StatusInternalServerError)
		return
	}

	h.deliver(ctx, number, ev.Data.Source, reply)
	writeOK(w)
}

// remapListChoice translates a bare option number back into the option text
// when the previous turn sent the numbered fallback list to a web client.
func (h *Handler) remapListChoice(ctx context.Context, number, text string) string {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(workflow.SpecialListOptions) {
		return text
	}
	session, err := h.store.GetSession(ctx, number)
	if err != nil || session == nil {
		return text
	}
	if !session.ScratchBool(workflow.KeyTextListSentToWeb) {
		return text
	}
	delete(session.Scratch, workflow.KeyTextListSentToWeb)
	if err := h.store.UpsertSession(ctx, session); err != nil {
		h.logger.Error("Failed to clear list flag", zap.String("number", number), zap.Error(err))
	}
	return workflow.SpecialListOptions[n-1]
}

func (h *Handler) deliver(ctx context.Context, number, source string, reply *models.Reply) {
	switch reply.ToolCall {
	case workflow.ActionSendSpecialList:
		h.deliverSpecialList(ctx, number, source, reply)
		return
	case workflow.ActionSendVideo:
		for _, m := range reply.Messages {
			h.send(ctx, number, m.Text)
		}
		h.deliverVideo(ctx, number, reply)
		return
	}
	for _, m := range reply.Messages {
		h.send(ctx, number, m.Text)
	}
}

// deliverSpecialList sends the interactive option list, falling back to a
// numbered text list for WhatsApp Web clients, which cannot render lists.
func (h *Handler) deliverSpecialList(ctx context.Context, number, source string, reply *models.Reply) {
	if source == "web" {
		var b strings.Builder
		b.WriteString(workflow.MsgSpecialListDescription)
		for i, opt := range workflow.SpecialListOptions {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		h.send(ctx, number, b.String())
		h.markTextListSent(ctx, number)
		return
	}

	rows := make([]ListRow, len(workflow.SpecialListOptions))
	for i, opt := range workflow.SpecialListOptions {
		rows[i] = ListRow{Title: opt, RowID: opt}
	}
	err := h.sender.SendList(ctx, number,
		workflow.MsgSpecialListTitle, workflow.MsgSpecialListDescription, listButtonText, rows)
	if err != nil {
		h.logger.Error("Failed to send option list", zap.String("number", number), zap.Error(err))
	}
}

func (h *Handler) markTextListSent(ctx context.Context, number string) {
	session, err := h.store.GetSession(ctx, number)
	if err != nil || session == nil {
		return
	}
	if session.Scratch == nil {
		session.Scratch = map[string]any{}
	}
	session.Scratch[workflow.KeyTextListSentToWeb] = true
	if err := h.store.UpsertSession(ctx, session); err != nil {
		h.logger.Error("Failed to persist list flag", zap.String("number", number), zap.Error(err))
	}
}

func (h *Handler) deliverVideo(ctx context.Context, number string, reply *models.Reply) {
	file, _ := reply.Video["video_file"].(string)
	caption, _ := reply.Video["caption"].(string)
	if file == "" {
		h.logger.Warn("Video action without a file", zap.String("number", number))
		return
	}
	url := h.bucketURL + "/" + file
	if err := h.sender.SendVideo(ctx, number, url, caption); err != nil {
		h.logger.Error("Failed to send video", zap.String("number", number), zap.Error(err))
	}
}

func (h *Handler) send(ctx context.Context, number, text string) {
	if text == "" {
		return
	}
	if err := h.sender.SendText(ctx, number, text); err != nil {
		h.logger.Error("Failed to send message", zap.String("number", number), zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}
