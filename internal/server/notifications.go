package server

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/session"
	"github.com/docpilot/docpilot/internal/store"
)

type NotificationsHandler struct {
	Store    *store.Store
	Secret   []byte
	Sessions *session.Manager
}

func (h *NotificationsHandler) Register(g *echo.Group) {
	g.Use(runtime.EchoAuthMiddleware(h.Secret))
	g.Use(sessionActivity(h.Sessions))
	g.GET("", h.list)
	g.PATCH("", h.markRead)
}

func (h *NotificationsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListNotifications(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *NotificationsHandler) markRead(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req MarkNotificationRequest
	if err := c.Bind(&req); err != nil || req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id required")
	}
	if err := h.Store.MarkNotificationRead(c.Request().Context(), req.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
