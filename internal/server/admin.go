package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/search"
	"github.com/docpilot/docpilot/internal/store"
)

// AdminHandler groups the console endpoints: user management, FAQ CRUD,
// support queue and analytics. Every route requires the admin role.
type AdminHandler struct {
	Store  *store.Store
	Index  *search.FAQIndex
	Secret []byte
}

func (h *AdminHandler) Register(g *echo.Group) {
	g.Use(runtime.EchoAuthMiddleware(h.Secret))
	g.Use(h.requireAdmin)

	g.GET("/users", h.listUsers)
	g.PATCH("/users/:id", h.updateUserRole)
	g.GET("/analytics", h.analytics)

	g.POST("/faqs", h.createFAQ)
	g.PUT("/faqs/:id", h.updateFAQ)
	g.DELETE("/faqs/:id", h.deleteFAQ)

	g.GET("/support", h.listTickets)
	g.PATCH("/support/:id", h.updateTicket)
}

func (h *AdminHandler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Get("user_id").(string)
		u, err := h.Store.GetUser(c.Request().Context(), userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}
		if u.Role != store.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return next(c)
	}
}

func (h *AdminHandler) listUsers(c echo.Context) error {
	users, err := h.Store.ListUsers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339)})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) updateUserRole(c echo.Context) error {
	var req UserRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Role != store.RoleUser && req.Role != store.RoleAdmin {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be user or admin")
	}
	if err := h.Store.UpdateUserRole(c.Request().Context(), c.Param("id"), req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *AdminHandler) analytics(c echo.Context) error {
	counts, err := h.Store.AnalyticsCounts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, AnalyticsResponse{
		Users:               counts.Users,
		Documents:           counts.DocumentsByStatus,
		OpenTickets:         counts.OpenTickets,
		UnreadNotifications: counts.UnreadNotifications,
	})
}

func (h *AdminHandler) createFAQ(c echo.Context) error {
	var req FAQRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question and answer required")
	}
	id, err := h.Store.CreateFAQ(c.Request().Context(), req.Question, req.Answer, req.Category)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Index != nil {
		_ = h.Index.Upsert(store.FAQ{ID: id, Question: req.Question, Answer: req.Answer, Category: req.Category})
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *AdminHandler) updateFAQ(c echo.Context) error {
	var req FAQRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := c.Param("id")
	if err := h.Store.UpdateFAQ(c.Request().Context(), id, req.Question, req.Answer, req.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "faq not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Index != nil {
		_ = h.Index.Upsert(store.FAQ{ID: id, Question: req.Question, Answer: req.Answer, Category: req.Category})
	}
	return c.NoContent(http.StatusOK)
}

func (h *AdminHandler) deleteFAQ(c echo.Context) error {
	id := c.Param("id")
	if err := h.Store.DeleteFAQ(c.Request().Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "faq not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Index != nil {
		_ = h.Index.Delete(id)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) listTickets(c echo.Context) error {
	tickets, err := h.Store.ListTickets(c.Request().Context(), "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ticketResponses(tickets))
}

func (h *AdminHandler) updateTicket(c echo.Context) error {
	var req TicketStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case store.TicketStatusOpen, store.TicketStatusInProgress, store.TicketStatusClosed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if err := h.Store.UpdateTicketStatus(c.Request().Context(), c.Param("id"), req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
