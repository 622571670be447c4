package service

import (
	"context"
	"fmt"

	"racebet/internal/domain"
	"racebet/internal/infrastructure/provider"
	"racebet/internal/repository"

	"gorm.io/gorm"
)

type DriverOdds struct {
	provider.Driver
	Odds domain.Odds
}

type EventView struct {
	Session       provider.Session
	Drivers       []DriverOdds
	Settled       bool
	WinningDriver domain.DriverNumber
}

// EventService 场次列表，赔率与下注时使用同一个 OddsCalculator
type EventService struct {
	provider    provider.SessionProvider
	odds        *OddsCalculator
	outcomeRepo *repository.OutcomeRepository
}

func NewEventService(db *gorm.DB, p provider.SessionProvider, odds *OddsCalculator) *EventService {
	return &EventService{
		provider:    p,
		odds:        odds,
		outcomeRepo: repository.NewOutcomeRepository(db),
	}
}

func (s *EventService) ListEvents(ctx context.Context, q provider.Query, fresh bool) ([]EventView, error) {
	sessions, err := s.provider.Sessions(ctx, q, fresh)
	if err != nil {
		return nil, err
	}

	views := make([]EventView, 0, len(sessions))
	for _, session := range sessions {
		view := EventView{
			Session: session,
			Drivers: make([]DriverOdds, 0, len(session.Drivers)),
		}
		for _, d := range session.Drivers {
			view.Drivers = append(view.Drivers, DriverOdds{
				Driver: d,
				Odds:   s.odds.Odds(session.Key, d.Number),
			})
		}

		outcome, err := s.outcomeRepo.Get(ctx, nil, session.Key)
		if err != nil {
			return nil, fmt.Errorf("查询场次 %d 结果失败: %w", session.Key, err)
		}
		if outcome != nil {
			view.Settled = true
			view.WinningDriver = outcome.WinningDriver
		}
		views = append(views, view)
	}
	return views, nil
}
