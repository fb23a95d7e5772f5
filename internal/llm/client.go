package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/andestrans/cargobot/internal/models"
)

// Tool declares one function the model may call. Parameters is a JSON schema
// object describing the argument map.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Param describes one property of a tool's argument object.
type Param struct {
	Type        string
	Description string
}

// ObjectSchema builds the JSON schema for a tool taking the given named
// parameters.
func ObjectSchema(params map[string]Param, required ...string) json.RawMessage {
	type property struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}
	schema := struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
		Required   []string            `json:"required,omitempty"`
	}{Type: "object", Properties: map[string]property{}, Required: required}
	for name, p := range params {
		schema.Properties[name] = property{Type: p.Type, Description: p.Description}
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Request is a single generation call. A nil Temperature means "use the
// invoker's configured default"; an explicit zero is passed through.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []models.Message
	Tools        []Tool
	Temperature  *float32
}

// ToolCall is a function invocation the model requested instead of (or along
// with) free text.
type ToolCall struct {
	Name string
	Args map[string]any
}

type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the narrow surface the rest of the system sees of the LLM
// service. Automatic tool execution is always disabled; the tool loop
// executes calls itself.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// TransientError marks an upstream failure worth retrying. The OpenAI adapter
// wraps 429 and 5xx responses and transport failures in it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient llm error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error came from the transient/server class
// that the invoker retries. Client and validation errors are not transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Network-level failures have no status code; treat them as transient.
	return &TransientError{Err: err}
}
