package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/docpilot/docpilot/config"
)

// Client talks to a Dify-compatible workflow API. Every request carries the
// API key and is bounded by the configured timeout so a stalled upstream
// cannot hang a relay forever.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Logger  *log.Logger
}

// UpstreamError preserves the upstream HTTP status so handlers can mirror it.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

func NewClient(cfg config.DifyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  log.New(log.Writer(), "[DIFY] ", log.LstdFlags),
	}
}

// ChatResult is either a live event stream or a task handle, never both.
// The two shapes are distinguished by the upstream content type.
type ChatResult struct {
	Streaming      bool
	ContentType    string
	Body           io.ReadCloser
	TaskID         string
	ConversationID string
}

type chatTaskEnvelope struct {
	TaskID         string `json:"task_id"`
	ConversationID string `json:"conversation_id"`
}

// SendChatMessage forwards a query with streaming response mode requested.
// The caller owns Body when Streaming is true and must close it.
func (c *Client) SendChatMessage(ctx context.Context, user, query, conversationID string) (*ChatResult, error) {
	payload := map[string]interface{}{
		"query":         query,
		"inputs":        map[string]interface{}{},
		"response_mode": "streaming",
		"user":          user,
	}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}
	resp, err := c.post(ctx, "/chat-messages", payload)
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return &ChatResult{Streaming: true, ContentType: ct, Body: resp.Body}, nil
	}
	defer resp.Body.Close()
	var env chatTaskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode upstream chat response: %w", err)
	}
	return &ChatResult{TaskID: env.TaskID, ConversationID: env.ConversationID, ContentType: ct}, nil
}

// TaskEvents opens the event stream for a previously returned task id.
func (c *Client) TaskEvents(ctx context.Context, taskID string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/chat-messages/"+taskID+"/events", nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// RunOCRWorkflow triggers the extraction workflow for one document. The
// workflow fetches the file itself through fileURL (token-gated) and posts
// results to callbackURL, so this call only confirms the run was accepted.
func (c *Client) RunOCRWorkflow(ctx context.Context, documentID, fileURL, callbackURL, mimeType, user string) error {
	payload := map[string]interface{}{
		"inputs": map[string]interface{}{
			"document_id":  documentID,
			"file_url":     fileURL,
			"callback_url": callbackURL,
			"mime_type":    mimeType,
		},
		"response_mode": "streaming",
		"user":          user,
	}
	resp, err := c.post(ctx, "/workflows/run", payload)
	if err != nil {
		return err
	}
	// Drain in the background so closing early does not cancel the run.
	go func() {
		defer resp.Body.Close()
		n, err := io.Copy(io.Discard, resp.Body)
		if err != nil {
			c.Logger.Printf("workflow stream for document %s ended after %d bytes: %v", documentID, n, err)
		}
	}()
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
