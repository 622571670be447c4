package handler

import (
	"time"

	"racebet/internal/domain"
	"racebet/internal/service"

	"github.com/shopspring/decimal"
)

// 金额统一以两位小数字符串输出，避免客户端浮点误差

type PlaceBetRequest struct {
	SessionKey   *int64           `json:"sessionKey" binding:"required"`
	DriverNumber *int             `json:"driverNumber" binding:"required"`
	Amount       *decimal.Decimal `json:"amount" binding:"required"`
}

type BetResponse struct {
	BetID             string `json:"betId"`
	SessionKey        int64  `json:"sessionKey"`
	DriverNumber      int    `json:"driverNumber"`
	Stake             string `json:"stake"`
	Odds              int    `json:"odds"`
	PotentialWinnings string `json:"potentialWinnings"`
	Status            string `json:"status"`
	UserBalance       string `json:"userBalance"`
}

func toBetResponse(r *service.PlaceBetResult) BetResponse {
	return BetResponse{
		BetID:             string(r.BetID),
		SessionKey:        int64(r.SessionKey),
		DriverNumber:      int(r.DriverNumber),
		Stake:             r.Stake.String(),
		Odds:              r.Odds.Int(),
		PotentialWinnings: r.PotentialWinnings.String(),
		Status:            string(r.Status),
		UserBalance:       r.Balance.String(),
	}
}

type SettleRequest struct {
	WinningDriverNumber *int `json:"winningDriverNumber" binding:"required"`
}

type SettlementResponse struct {
	SessionKey          int64  `json:"sessionKey"`
	WinningDriverNumber int    `json:"winningDriverNumber"`
	TotalBets           int    `json:"totalBets"`
	WinningBets         int    `json:"winningBets"`
	TotalPayout         string `json:"totalPayout"`
}

func toSettlementResponse(r *domain.SettlementResult) SettlementResponse {
	return SettlementResponse{
		SessionKey:          int64(r.SessionKey),
		WinningDriverNumber: int(r.WinningDriver),
		TotalBets:           r.TotalBets,
		WinningBets:         r.WinningBets,
		TotalPayout:         r.TotalPayout.String(),
	}
}

type DriverResponse struct {
	DriverNumber int    `json:"driverNumber"`
	FullName     string `json:"fullName"`
	TeamName     string `json:"teamName,omitempty"`
	Odds         int    `json:"odds"`
}

type EventResponse struct {
	SessionKey          int64            `json:"sessionKey"`
	SessionName         string           `json:"sessionName"`
	SessionType         string           `json:"sessionType"`
	CircuitName         string           `json:"circuitName,omitempty"`
	CountryName         string           `json:"countryName,omitempty"`
	CountryCode         string           `json:"countryCode,omitempty"`
	Year                int              `json:"year"`
	DateStart           *time.Time       `json:"dateStart,omitempty"`
	DateEnd             *time.Time       `json:"dateEnd,omitempty"`
	Settled             bool             `json:"settled"`
	WinningDriverNumber *int             `json:"winningDriverNumber,omitempty"`
	Drivers             []DriverResponse `json:"drivers"`
}

func toEventResponse(v service.EventView) EventResponse {
	s := v.Session
	resp := EventResponse{
		SessionKey:  int64(s.Key),
		SessionName: s.Name,
		SessionType: s.Type,
		CircuitName: s.CircuitShortName,
		CountryName: s.CountryName,
		CountryCode: s.CountryCode,
		Year:        s.Year,
		DateStart:   s.Start,
		DateEnd:     s.End,
		Settled:     v.Settled,
		Drivers:     make([]DriverResponse, 0, len(v.Drivers)),
	}
	if v.Settled {
		winner := int(v.WinningDriver)
		resp.WinningDriverNumber = &winner
	}
	for _, d := range v.Drivers {
		resp.Drivers = append(resp.Drivers, DriverResponse{
			DriverNumber: int(d.Number),
			FullName:     d.FullName,
			TeamName:     d.TeamName,
			Odds:         d.Odds.Int(),
		})
	}
	return resp
}

type BetView struct {
	BetID        string     `json:"betId"`
	SessionKey   int64      `json:"sessionKey"`
	DriverNumber int        `json:"driverNumber"`
	Stake        string     `json:"stake"`
	Odds         int        `json:"odds"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	SettledAt    *time.Time `json:"settledAt,omitempty"`
}

type UserResponse struct {
	UserID    string    `json:"userId"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	Bets      []BetView `json:"bets"`
}

func toUserResponse(v *service.AccountView) UserResponse {
	resp := UserResponse{
		UserID:    string(v.Account.ID),
		Balance:   v.Account.Balance.String(),
		CreatedAt: v.Account.CreatedAt,
		Bets:      make([]BetView, 0, len(v.Bets)),
	}
	for _, b := range v.Bets {
		resp.Bets = append(resp.Bets, BetView{
			BetID:        string(b.ID),
			SessionKey:   int64(b.SessionKey),
			DriverNumber: int(b.DriverNumber),
			Stake:        b.Stake.String(),
			Odds:         b.Odds.Int(),
			Status:       string(b.Status),
			CreatedAt:    b.CreatedAt,
			SettledAt:    b.SettledAt,
		})
	}
	return resp
}

type LedgerEntryResponse struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balanceAfter"`
	ReferenceID  string    `json:"referenceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toLedgerResponse(entries []*domain.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:           e.ID,
			Type:         string(e.Type),
			Amount:       decimal.New(e.Amount, -2).StringFixed(2),
			BalanceAfter: e.BalanceAfter.String(),
			ReferenceID:  e.ReferenceID,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}
