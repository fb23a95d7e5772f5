package llm

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/models"
)

// OpenAIClient adapts the go-openai chat completion API to the Client
// interface.
type OpenAIClient struct {
	client    *openai.Client
	maxTokens int
	logger    *zap.Logger
}

func NewOpenAIClient(apiKey string, maxTokens int, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClient(apiKey),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleAssistant
		if msg.Role == models.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: c.maxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
		if chatReq.Temperature == 0 {
			// The upstream client drops a zero temperature from the JSON
			// body; the smallest float is its documented stand-in.
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return &Response{}, nil
	}

	choice := resp.Choices[0].Message
	out := &Response{Text: strings.TrimSpace(choice.Content)}
	for _, tc := range choice.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				c.logger.Warn("Failed to parse tool call arguments",
					zap.String("tool", tc.Function.Name),
					zap.Error(err))
				args = map[string]any{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Args: args})
	}

	return out, nil
}
