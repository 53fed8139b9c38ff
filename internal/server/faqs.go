package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/docpilot/docpilot/internal/search"
	"github.com/docpilot/docpilot/internal/store"
)

// FAQHandler serves the public FAQ listing. Queries go through the bleve
// index; the plain listing reads straight from the store.
type FAQHandler struct {
	Store *store.Store
	Index *search.FAQIndex
}

func (h *FAQHandler) Register(g *echo.Group) {
	g.GET("", h.list)
}

func (h *FAQHandler) list(c echo.Context) error {
	ctx := c.Request().Context()
	q := strings.TrimSpace(c.QueryParam("q"))

	faqs, err := h.Store.ListFAQs(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if q == "" {
		return c.JSON(http.StatusOK, faqResponses(faqs))
	}

	ids, err := h.Index.Search(q, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	byID := make(map[string]store.FAQ, len(faqs))
	for _, f := range faqs {
		byID[f.ID] = f
	}
	ranked := make([]store.FAQ, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ranked = append(ranked, f)
		}
	}
	return c.JSON(http.StatusOK, faqResponses(ranked))
}

func faqResponses(faqs []store.FAQ) []FAQResponse {
	out := make([]FAQResponse, 0, len(faqs))
	for _, f := range faqs {
		out = append(out, FAQResponse{ID: f.ID, Question: f.Question, Answer: f.Answer, Category: f.Category})
	}
	return out
}
