package api

import (
	"net/http"
	"strconv"
	"time"

	"chart-advisor/internal/analysis"
	"chart-advisor/internal/database"
	"chart-advisor/internal/events"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// handleReconcile runs one reconciliation cycle for the pair. The body is
// the producer's analysis result. The response is always 200 with the
// structured result; reconciliation failures are reported in its fields,
// only transport-level problems get an error status.
func (s *Server) handleReconcile(c *gin.Context) {
	ticker := c.Param("ticker")
	timeframe := c.Param("timeframe")

	var ar analysis.Result
	if err := c.ShouldBindJSON(&ar); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis payload: " + err.Error()})
		return
	}
	if ar.Ticker == "" {
		ar.Ticker = ticker
	}
	if ar.Timeframe == "" {
		ar.Timeframe = timeframe
	}

	// Persist the raw payload before acting on it so a crash mid-cycle
	// still leaves the analysis auditable.
	if s.analyses != nil && ar.ID != "" {
		analyzedAt := ar.Timestamp
		if analyzedAt.IsZero() {
			analyzedAt = time.Now()
		}
		if err := s.analyses.SaveAnalysis(c.Request.Context(), ar.ID, ticker, timeframe, analyzedAt, ar.CurrentPrice, &ar); err != nil {
			s.logger.WithError(err).Warn("failed to persist analysis",
				"analysis_id", ar.ID, "ticker", ticker)
		}
	}

	result := s.rec.Reconcile(c.Request.Context(), ticker, timeframe, &ar)

	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{
			Type: events.ReconcileDone,
			Data: map[string]interface{}{
				"ticker":      ticker,
				"timeframe":   timeframe,
				"action_type": result.ActionType,
				"success":     result.Success,
			},
		})
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListTrades(c *gin.Context) {
	ticker := c.Query("ticker")
	timeframe := c.Query("timeframe")
	if ticker == "" || timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker and timeframe query parameters are required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	trades, err := s.store.ListTrades(c.Request.Context(), ticker, timeframe, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleActiveTrades(c *gin.Context) {
	trades, err := s.store.ListOpenTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list open trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleGetTrade(c *gin.Context) {
	trade, err := s.store.GetTradeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trade"})
		return
	}
	if trade == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	c.JSON(http.StatusOK, trade)
}

type userCloseRequest struct {
	// ClosePrice is optional; when absent the latest market price is used.
	ClosePrice *float64 `json:"close_price,omitempty"`
}

// handleUserClose closes a trade on explicit user request. The protection
// registry does not apply here: the guard exists to stop automated sweeps,
// not a human decision.
func (s *Server) handleUserClose(c *gin.Context) {
	ctx := c.Request.Context()

	trade, err := s.store.GetTradeByID(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trade"})
		return
	}
	if trade == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	if trade.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "trade is already closed", "status": trade.Status})
		return
	}

	var req userCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	closePrice := 0.0
	if req.ClosePrice != nil {
		closePrice = *req.ClosePrice
	} else if s.provider != nil {
		price, err := s.provider.LastPrice(ctx, trade.Ticker, trade.Timeframe)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market price unavailable, supply close_price"})
			return
		}
		closePrice = price
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"error": "close_price is required"})
		return
	}

	now := time.Now()
	wasActive := trade.Status == database.StatusActive

	trade.Status = database.StatusUserClosed
	trade.ClosePrice = &closePrice
	trade.ClosedAt = &now
	if wasActive {
		// Only a triggered position has realized P&L.
		pnl := closePrice - trade.EntryPrice
		if trade.Action == database.ActionSell {
			pnl = trade.EntryPrice - closePrice
		}
		pnlPercent := 0.0
		if trade.EntryPrice != 0 {
			pnlPercent = pnl / trade.EntryPrice * 100
		}
		trade.PnL = &pnl
		trade.PnLPercent = &pnlPercent
	}

	if err := s.store.UpdateTrade(ctx, trade); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close trade"})
		return
	}

	if s.cache != nil {
		if err := s.cache.ClearTradeContext(ctx, trade.Ticker, trade.Timeframe); err != nil {
			s.logger.WithError(err).Warn("failed to clear trade context",
				"ticker", trade.Ticker, "timeframe", trade.Timeframe)
		}
	}

	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{
			Type: events.TradeClosed,
			Data: map[string]interface{}{"trade": trade, "reason": "user_closed"},
		})
	}

	s.logger.Info("trade closed by user",
		"trade_id", trade.ID, "ticker", trade.Ticker, "close_price", closePrice)
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleProtectionStatus(c *gin.Context) {
	entries := s.registry.ListActive()
	c.JSON(http.StatusOK, gin.H{
		"ttl":     s.registry.TTL().String(),
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleLatestAnalysis(c *gin.Context) {
	if s.analyses == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "analysis persistence is not configured"})
		return
	}

	payload, err := s.analyses.GetLatestAnalysis(c.Request.Context(), c.Param("ticker"), c.Param("timeframe"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis"})
		return
	}
	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for pair"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}
