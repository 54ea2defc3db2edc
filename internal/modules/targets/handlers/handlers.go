// Package handlers provides HTTP handlers for target portfolio management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/domain"
	"github.com/targeteer/targeteer/internal/modules/targets"
)

// Handler handles target portfolio HTTP requests
type Handler struct {
	repo    *targets.Repository
	service *targets.Service
	planner *targets.Planner
	log     zerolog.Logger
}

// NewHandler creates a new targets handler
func NewHandler(repo *targets.Repository, service *targets.Service, planner *targets.Planner, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		planner: planner,
		log:     log.With().Str("handler", "targets").Logger(),
	}
}

// HandleListPortfolios returns all target portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.repo.ListPortfolios()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result := make([]map[string]interface{}, 0, len(portfolios))
	for _, p := range portfolios {
		result = append(result, map[string]interface{}{
			"id":          p.ID,
			"name":        p.Name,
			"goal":        p.Goal.String(),
			"account_ids": p.AccountIDs,
			"created_at":  p.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleCreatePortfolio creates a new target portfolio
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	goal := decimal.NewFromInt(1000)
	if req.Goal != "" {
		var err error
		if goal, err = decimal.NewFromString(req.Goal); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid goal")
			return
		}
	}

	portfolio, err := h.repo.CreatePortfolio(req.Name, goal)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":   portfolio.ID,
		"name": portfolio.Name,
		"goal": portfolio.Goal.String(),
	})
}

// HandleGetPortfolio returns the portfolio with all derived columns
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	view, err := h.service.GetView(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	lines := make([]map[string]interface{}, 0, len(view.Lines))
	for _, lv := range view.Lines {
		lines = append(lines, map[string]interface{}{
			"id":                lv.Line.ID,
			"sort_order":        lv.Line.SortOrder,
			"uid":               lv.Line.InstrumentUID,
			"ticker":            lv.Ticker,
			"name":              lv.Name,
			"index_weight":      lv.Line.IndexWeight.String(),
			"coefficient":       lv.Line.Coefficient.String(),
			"my_weight":         lv.WeightPercent.String(),
			"index_correlation": lv.IndexCorrelation.String(),
			"price":             lv.Price.String(),
			"to_buy_qtty":       lv.TargetQuantity,
			"to_buy_value":      lv.TargetValue.String(),
			"bought_qtty":       lv.BoughtQuantity,
			"bought_value":      lv.BoughtValue.String(),
			"percent_complete":  lv.PercentComplete.String(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               view.Portfolio.ID,
		"name":             view.Portfolio.Name,
		"goal":             view.Portfolio.Goal.String(),
		"account_ids":      view.Portfolio.AccountIDs,
		"total_weight":     view.TotalWeight.String(),
		"total_value":      view.TotalValue.String(),
		"percent_complete": view.PercentComplete.String(),
		"lines":            lines,
	})
}

// HandleUpdateGoal updates the portfolio's monetary goal
func (h *Handler) HandleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req struct {
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	goal, err := decimal.NewFromString(req.Goal)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid goal")
		return
	}

	if err := h.repo.UpdateGoal(id, goal); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSetAccounts replaces the portfolio's bound account set
func (h *Handler) HandleSetAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req struct {
		AccountIDs []string `json:"account_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.SetAccounts(id, req.AccountIDs); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTotalWeight returns the corrected weight sum.
// ?use_cache=false forces a recomputation.
func (h *Handler) HandleTotalWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	useCache := r.URL.Query().Get("use_cache") != "false"
	total, err := h.service.TotalWeight(id, useCache)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"total_weight": total.String()})
}

// HandleTotalValue returns the bought-value sum of the portfolio's lines.
// ?use_cache=false forces a recomputation.
func (h *Handler) HandleTotalValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	useCache := r.URL.Query().Get("use_cache") != "false"
	total, err := h.service.TotalValue(r.Context(), id, useCache)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"total_value": total.String()})
}

// HandleAddLine appends an instrument to the portfolio
func (h *Handler) HandleAddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		h.writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	line, err := h.repo.AddLine(id, req.UID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         line.ID,
		"sort_order": line.SortOrder,
		"uid":        line.InstrumentUID,
	})
}

// HandleMoveLine moves a line one position up or down
func (h *Handler) HandleMoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}

	var direction targets.Direction
	switch chi.URLParam(r, "direction") {
	case "up":
		direction = targets.Up
	case "down":
		direction = targets.Down
	default:
		h.writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}

	if err := h.repo.MoveLine(lineID, direction); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSetCoefficient updates a line's coefficient
func (h *Handler) HandleSetCoefficient(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}

	var req struct {
		Coefficient string `json:"coefficient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	coefficient, err := decimal.NewFromString(req.Coefficient)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid coefficient")
		return
	}

	line, err := h.repo.GetLine(lineID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.repo.SetCoefficient(lineID, coefficient); err != nil {
		h.writeDomainError(w, err)
		return
	}

	// A coefficient change shifts every normalized weight; recompute the
	// total now so cached readers pick up the new sum immediately.
	total, err := h.service.TotalWeight(line.PortfolioID, false)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"total_weight": total.String(),
	})
}

// HandleDeleteLine removes a line and closes the ordering gap
func (h *Handler) HandleDeleteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}

	if err := h.repo.DeleteLine(lineID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSyncIndex applies the reference index composition to the portfolio
func (h *Handler) HandleSyncIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == "" {
		h.writeError(w, http.StatusBadRequest, "index is required")
		return
	}

	if err := h.service.SyncFromIndex(r.Context(), id, req.Index); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandlePlanPurchase returns a greedy purchase plan for the given cash
func (h *Handler) HandlePlanPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	cashParam := r.URL.Query().Get("cash")
	cash, err := decimal.NewFromString(cashParam)
	if err != nil || !cash.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "cash must be a positive number")
		return
	}

	plan, err := h.planner.PlanSimplePurchase(r.Context(), id, cash)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result := make([]map[string]interface{}, 0, len(plan))
	for _, rec := range plan {
		result = append(result, map[string]interface{}{
			"line_id":   rec.Line.ID,
			"ticker":    rec.Ticker,
			"lots":      rec.Lots,
			"quantity":  rec.Quantity,
			"lot_price": rec.LotPrice.String(),
			"value":     rec.Value.String(),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

// writeDomainError maps domain errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderInvariant):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrZeroTotalWeight):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
