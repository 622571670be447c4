package handler

import (
	"strconv"

	"racebet/internal/domain"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/service"
	"racebet/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderUserID         = "X-User-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-ID"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	bets       *service.BetService
	settlement *service.SettlementService
	accounts   *service.AccountService
	events     *service.EventService
	log        *zap.Logger
}

func NewHandler(bets *service.BetService, settlement *service.SettlementService, accounts *service.AccountService, events *service.EventService, log *zap.Logger) *Handler {
	return &Handler{
		bets:       bets,
		settlement: settlement,
		accounts:   accounts,
		events:     events,
		log:        log,
	}
}

// ============================================================
// 下注
// ============================================================

// PlaceBet 下注
// POST /api/v1/bets
func (h *Handler) PlaceBet(c *gin.Context) {
	userID, err := domain.ParseUserID(c.GetHeader(HeaderUserID))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body: "+err.Error())
		return
	}

	sessionKey, err := domain.ParseSessionKey(*req.SessionKey)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	driver, err := domain.ParseDriverNumber(*req.DriverNumber)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	stake, err := domain.StakeFromDecimal(*req.Amount)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	result, err := h.bets.PlaceBet(c.Request.Context(), service.PlaceBetCommand{
		UserID:         userID,
		SessionKey:     sessionKey,
		DriverNumber:   driver,
		Stake:          stake,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Created(c, toBetResponse(result))
}

// ============================================================
// 场次
// ============================================================

// SettleEvent 结算
// POST /api/v1/events/:sessionKey/settle
func (h *Handler) SettleEvent(c *gin.Context) {
	raw, err := strconv.ParseInt(c.Param("sessionKey"), 10, 64)
	if err != nil {
		response.ParamError(c, "sessionKey must be an integer")
		return
	}
	sessionKey, err := domain.ParseSessionKey(raw)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body: "+err.Error())
		return
	}
	winner, err := domain.ParseDriverNumber(*req.WinningDriverNumber)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	result, err := h.settlement.Settle(c.Request.Context(), service.SettleCommand{
		SessionKey:    sessionKey,
		WinningDriver: winner,
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, toSettlementResponse(result))
}

// ListEvents 场次列表
// GET /api/v1/events?session_type=Race&year=2023&country_code=ITA
func (h *Handler) ListEvents(c *gin.Context) {
	q := provider.Query{
		SessionType: c.Query("session_type"),
		CountryCode: c.Query("country_code"),
	}
	if y := c.Query("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 1950 || year > 2100 {
			response.ParamError(c, "year must be between 1950 and 2100")
			return
		}
		q.Year = year
	}
	fresh := c.GetHeader("Cache-Control") == "no-cache"

	views, err := h.events.ListEvents(c.Request.Context(), q, fresh)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	out := make([]EventResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toEventResponse(v))
	}
	response.Success(c, out)
}

// ============================================================
// 账户
// ============================================================

// GetUser 账户余额与注单
// GET /api/v1/users/:userId
func (h *Handler) GetUser(c *gin.Context) {
	userID, err := domain.ParseUserID(c.Param("userId"))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	view, err := h.accounts.GetAccount(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, toUserResponse(view))
}

// GetLedger 账户流水
// GET /api/v1/users/:userId/ledger
func (h *Handler) GetLedger(c *gin.Context) {
	userID, err := domain.ParseUserID(c.Param("userId"))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	entries, err := h.accounts.Ledger(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, toLedgerResponse(entries))
}
