package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Gateway sends WhatsApp messages through an Evolution API instance.
type Gateway struct {
	serverURL string
	apiKey    string
	instance  string
	client    *http.Client
	logger    *zap.Logger
}

func NewGateway(serverURL, apiKey, instance string, logger *zap.Logger) *Gateway {
	return &Gateway{
		serverURL: serverURL,
		apiKey:    apiKey,
		instance:  instance,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// typingDelay maps message length to a presence delay so replies read as
// typed rather than instantaneous. Clamped to 200-2500 ms across 5-300 chars.
func typingDelay(text string) int {
	const (
		minChars, maxChars = 5, 300
		minMs, maxMs       = 200, 2500
	)
	n := utf8.RuneCountInString(text)
	if n <= minChars {
		return minMs
	}
	if n >= maxChars {
		return maxMs
	}
	return minMs + (n-minChars)*(maxMs-minMs)/(maxChars-minChars)
}

func (g *Gateway) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", endpoint, err)
	}
	url := fmt.Sprintf("%s/message/%s/%s", g.serverURL, endpoint, g.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, detail)
	}
	return nil
}

func (g *Gateway) SendText(ctx context.Context, number, text string) error {
	return g.post(ctx, "sendText", map[string]any{
		"number": number,
		"text":   text,
		"delay":  typingDelay(text),
	})
}

// ListRow is one selectable option of an interactive list message.
type ListRow struct {
	Title string `json:"title"`
	RowID string `json:"rowId"`
}

func (g *Gateway) SendList(ctx context.Context, number, title, description, buttonText string, rows []ListRow) error {
	return g.post(ctx, "sendList", map[string]any{
		"number":      number,
		"title":       title,
		"description": description,
		"buttonText":  buttonText,
		"footerText":  " ",
		"sections": []map[string]any{
			{"title": title, "rows": rows},
		},
	})
}

func (g *Gateway) SendVideo(ctx context.Context, number, mediaURL, caption string) error {
	return g.post(ctx, "sendMedia", map[string]any{
		"number":    number,
		"mediatype": "video",
		"media":     mediaURL,
		"caption":   caption,
		"delay":     typingDelay(caption),
	})
}
