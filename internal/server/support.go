package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/session"
	"github.com/docpilot/docpilot/internal/store"
)

type SupportHandler struct {
	Store    *store.Store
	Secret   []byte
	Sessions *session.Manager
}

func (h *SupportHandler) Register(g *echo.Group) {
	g.Use(runtime.EchoAuthMiddleware(h.Secret))
	g.Use(sessionActivity(h.Sessions))
	g.GET("", h.list)
	g.POST("", h.create)
}

func (h *SupportHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req TicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject and message required")
	}
	reference := "TCK-" + strings.ToUpper(uuid.NewString()[:8])
	id, err := h.Store.CreateTicket(c.Request().Context(), reference, userID, req.Subject, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, TicketResponse{
		ID:        id,
		Reference: reference,
		Subject:   req.Subject,
		Message:   req.Message,
		Status:    store.TicketStatusOpen,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *SupportHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	tickets, err := h.Store.ListTickets(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ticketResponses(tickets))
}

func ticketResponses(tickets []store.SupportTicket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketResponse{
			ID:        t.ID,
			Reference: t.Reference,
			Subject:   t.Subject,
			Message:   t.Message,
			Status:    t.Status,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
