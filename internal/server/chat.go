package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/dify"
	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/session"
)

type ChatHandler struct {
	Dify     *dify.Client
	Secret   []byte
	Sessions *session.Manager
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.Use(runtime.EchoAuthMiddleware(h.Secret))
	g.Use(sessionActivity(h.Sessions))
	g.POST("/message", h.message)
	g.GET("/tasks/:taskId/events", h.taskEvents)
}

// message relays the upstream chat response. Streaming upstreams are
// forwarded chunk by chunk; JSON upstreams collapse to a task handle.
// The two shapes are mutually exclusive.
func (h *ChatHandler) message(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	res, err := h.Dify.SendChatMessage(c.Request().Context(), userID, req.Query, req.ConversationID)
	if err != nil {
		return upstreamHTTPError(err)
	}
	if !res.Streaming {
		return c.JSON(http.StatusOK, ChatTaskResponse{TaskID: res.TaskID, ConversationID: res.ConversationID})
	}
	defer res.Body.Close()
	streamRelaysTotal.WithLabelValues("chat").Inc()
	return relayStream(c, res.Body, res.ContentType)
}

// taskEvents relays a named task's event stream.
func (h *ChatHandler) taskEvents(c echo.Context) error {
	taskID := strings.TrimSpace(c.Param("taskId"))
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "taskId required")
	}
	body, contentType, err := h.Dify.TaskEvents(c.Request().Context(), taskID)
	if err != nil {
		return upstreamHTTPError(err)
	}
	defer body.Close()
	streamRelaysTotal.WithLabelValues("task").Inc()
	return relayStream(c, body, contentType)
}

// relayStream copies an upstream event stream to the caller without
// buffering the payload. Once headers are committed any read error just
// ends the response; there is no way to report it in-band.
func relayStream(c echo.Context, body io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "text/event-stream"
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := c.Response().Write(buf[:n]); werr != nil {
				return nil
			}
			c.Response().Flush()
		}
		if err != nil {
			return nil
		}
	}
}

func upstreamHTTPError(err error) error {
	var ue *dify.UpstreamError
	if errors.As(err, &ue) {
		return echo.NewHTTPError(ue.Status, "upstream request failed")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
