package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signal-core/internal/signal"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// httpStatus maps structured error codes onto HTTP statuses.
func httpStatus(err error) int {
	switch common.CodeOf(err) {
	case common.CodeValidation, common.CodeOutOfRange, common.CodeInsufficientNotional:
		return http.StatusBadRequest
	case common.CodeUnsupportedSymbol, common.CodePositionNotFound, common.CodeOrderNotFound:
		return http.StatusNotFound
	case common.CodeCooldownActive:
		return http.StatusConflict
	case common.CodeRateLimited:
		return http.StatusTooManyRequests
	case common.CodeTimeout, common.CodeNetwork, common.CodeMarkPriceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{
		"success": false,
		"code":    string(common.CodeOf(err)),
		"error":   err.Error(),
	})
}

// postSignal ingests one normalized entry signal.
func (s *Server) postSignal(c *gin.Context) {
	var sig signal.Signal
	if err := c.BindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid signal payload"})
		return
	}
	trade, err := s.Signals.HandleSignal(c.Request.Context(), &sig)
	if err != nil {
		// The trade row, when created, carries the failure for the caller.
		resp := gin.H{"success": false, "code": string(common.CodeOf(err)), "error": err.Error()}
		if trade != nil {
			resp["trade_id"] = trade.ID
		}
		c.JSON(httpStatus(err), resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trade_id": trade.ID})
}

// postAlert ingests one follow-up alert.
func (s *Server) postAlert(c *gin.Context) {
	var a signal.Alert
	if err := c.BindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid alert payload"})
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if err := s.Followup.Process(c.Request.Context(), &a); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// postFutures mirrors one upstream active-futures entry.
func (s *Server) postFutures(c *gin.Context) {
	var req struct {
		Trader  string `json:"trader"`
		Content string `json:"content"`
	}
	if err := c.BindJSON(&req); err != nil || req.Trader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid futures payload"})
		return
	}
	entry := &db.ActiveFutures{Trader: req.Trader, Content: req.Content}
	if err := s.DB.CreateActiveFutures(c.Request.Context(), entry); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": entry.ID})
}

// closeFutures flips a mirrored entry to CLOSED; the reconciler picks it up.
func (s *Server) closeFutures(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid id"})
		return
	}
	if err := s.DB.MarkFuturesClosed(c.Request.Context(), id, time.Now().UTC()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// getTrades lists trades filtered by trader, coin, and status.
func (s *Server) getTrades(c *gin.Context) {
	filter := db.TradeFilter{
		Trader: c.Query("trader"),
		Coin:   strings.ToUpper(c.Query("coin")),
	}
	if status := c.Query("status"); status != "" {
		filter.Statuses = strings.Split(strings.ToUpper(status), ",")
	}
	trades, err := s.DB.ListTrades(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trades": trades})
}

// getPositions returns live positions from every configured venue.
func (s *Server) getPositions(c *gin.Context) {
	out := gin.H{}
	for _, venue := range s.Meta.Venues {
		eng := s.Signals.EngineForVenue(venue)
		if eng == nil {
			continue
		}
		positions, err := eng.Ex.GetPositions(c.Request.Context(), "")
		if err != nil {
			out[venue] = gin.H{"error": err.Error()}
			continue
		}
		out[venue] = positions
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "positions": out})
}
