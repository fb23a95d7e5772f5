package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Message is one transcript entry of a session.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"message"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

func NewModelMessage(text string, toolCalls ...string) Message {
	return Message{Role: RoleModel, Text: text, ToolCalls: toolCalls, Timestamp: time.Now().UTC()}
}

// Session is the persisted record of one conversation, keyed by an opaque id.
// Scratch accumulates facts collected across turns (classifiedAs, form fields,
// idempotency flags such as sheet_row_added). Profile holds slow-changing
// counterparty data and is merged on update, never replaced.
type Session struct {
	ID         string            `json:"session_id"`
	Transcript []Message         `json:"messages"`
	State      string            `json:"state,omitempty"`
	Scratch    map[string]any    `json:"interaction_data,omitempty"`
	Profile    map[string]string `json:"user_data,omitempty"`
	Deleted    bool              `json:"is_deleted"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:      id,
		Scratch: map[string]any{},
		Profile: map[string]string{},
	}
}

// Reset clears everything but the identity and profile. Used for soft-deleted
// sessions and for AWAITING_RECLASSIFICATION restarts.
func (s *Session) Reset() {
	s.Transcript = nil
	s.State = ""
	s.Scratch = map[string]any{}
	s.Deleted = false
}

func (s *Session) MergeProfile(profile map[string]string) {
	if len(profile) == 0 {
		return
	}
	if s.Profile == nil {
		s.Profile = map[string]string{}
	}
	for k, v := range profile {
		s.Profile[k] = v
	}
}

func (s *Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Transcript {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// ScratchString reads a scratch value as a string, tolerating missing keys.
func (s *Session) ScratchString(key string) string {
	if s.Scratch == nil {
		return ""
	}
	v, _ := s.Scratch[key].(string)
	return v
}

func (s *Session) ScratchBool(key string) bool {
	if s.Scratch == nil {
		return false
	}
	v, _ := s.Scratch[key].(bool)
	return v
}

// Reply is what a turn produces for the transport layer: zero or more
// assistant messages, an optional special action the transport must translate
// (escalation, list, video), and the resulting session state.
type Reply struct {
	SessionID    string    `json:"sessionId"`
	Messages     []Message `json:"messages"`
	ToolCall     string    `json:"toolCall,omitempty"`
	State        string    `json:"state,omitempty"`
	ClassifiedAs Category  `json:"classifiedAs,omitempty"`

	// Video carries the media payload when ToolCall asks the transport to
	// send a video (video_file, caption).
	Video map[string]any `json:"video,omitempty"`
}
