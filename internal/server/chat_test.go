package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/config"
	"github.com/docpilot/docpilot/internal/dify"
)

func chatHandlerFor(upstream *httptest.Server) *ChatHandler {
	client := dify.NewClient(config.DifyConfig{BaseURL: upstream.URL, APIKey: "test-key"})
	return &ChatHandler{Dify: client, Secret: []byte("test-secret")}
}

func TestChatMessageRequiresQuery(t *testing.T) {
	h := &ChatHandler{Secret: []byte("test-secret")}
	c, _ := newContext(t, http.MethodPost, "/api/chat/message", strings.NewReader(`{"query":"   "}`))
	c.Set("user_id", "user-1")

	if code := httpCode(t, h.message(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestChatMessageRelaysEventStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" {
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["response_mode"] != "streaming" {
			t.Errorf("expected streaming response mode, got %v", payload["response_mode"])
		}
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"answer\":\"hel\"}\n\n"))
		w.Write([]byte("data: {\"answer\":\"lo\"}\n\n"))
	}))
	defer upstream.Close()

	h := chatHandlerFor(upstream)
	c, rec := newContext(t, http.MethodPost, "/api/chat/message", strings.NewReader(`{"query":"summarize my document"}`))
	c.Set("user_id", "user-1")

	if err := h.message(c); err != nil {
		t.Fatalf("message: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}
	if rec.Header().Get("Cache-Control") != "no-cache" || rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("missing streaming headers: %v", rec.Header())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"answer":"hel"`) || !strings.Contains(body, `"answer":"lo"`) {
		t.Fatalf("stream not relayed verbatim: %q", body)
	}
}

func TestChatMessageCollapsesJSONToTaskHandle(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9", "conversation_id": "conv-3"})
	}))
	defer upstream.Close()

	h := chatHandlerFor(upstream)
	c, rec := newContext(t, http.MethodPost, "/api/chat/message", strings.NewReader(`{"query":"hi"}`))
	c.Set("user_id", "user-1")

	if err := h.message(c); err != nil {
		t.Fatalf("message: %v", err)
	}
	var resp ChatTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "task-9" || resp.ConversationID != "conv-3" {
		t.Fatalf("unexpected task handle: %+v", resp)
	}
}

func TestChatMessageMirrorsUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	h := chatHandlerFor(upstream)
	c, _ := newContext(t, http.MethodPost, "/api/chat/message", strings.NewReader(`{"query":"hi"}`))
	c.Set("user_id", "user-1")

	if code := httpCode(t, h.message(c)); code != http.StatusTooManyRequests {
		t.Fatalf("expected upstream status mirrored, got %d", code)
	}
}

func TestTaskEventsRelaysStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages/task-9/events" {
			t.Errorf("unexpected upstream path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: done\n\n"))
	}))
	defer upstream.Close()

	h := chatHandlerFor(upstream)
	c, rec := newContext(t, http.MethodGet, "/api/chat/tasks/task-9/events", nil)
	c.SetParamNames("taskId")
	c.SetParamValues("task-9")
	c.Set("user_id", "user-1")

	if err := h.taskEvents(c); err != nil {
		t.Fatalf("taskEvents: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "data: done") {
		t.Fatalf("stream not relayed: %q", rec.Body.String())
	}
}

func TestTaskEventsRequiresTaskID(t *testing.T) {
	h := &ChatHandler{Secret: []byte("test-secret")}
	c, _ := newContext(t, http.MethodGet, "/api/chat/tasks//events", nil)
	c.SetParamNames("taskId")
	c.SetParamValues("  ")
	c.Set("user_id", "user-1")

	if code := httpCode(t, h.taskEvents(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}
