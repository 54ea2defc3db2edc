package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all target portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleListPortfolios)
		r.Post("/", h.HandleCreatePortfolio)

		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", h.HandleGetPortfolio)
			r.Put("/goal", h.HandleUpdateGoal)
			r.Put("/accounts", h.HandleSetAccounts)
			r.Get("/total-weight", h.HandleTotalWeight)
			r.Get("/total-value", h.HandleTotalValue)
			r.Post("/lines", h.HandleAddLine)
			r.Post("/sync-index", h.HandleSyncIndex)
			r.Get("/plan", h.HandlePlanPurchase)
		})
	})

	r.Route("/lines/{lineID}", func(r chi.Router) {
		r.Post("/move/{direction}", h.HandleMoveLine)
		r.Put("/coefficient", h.HandleSetCoefficient)
		r.Delete("/", h.HandleDeleteLine)
	})
}
