package handlers

import "github.com/customeros/mailclean/services"

type APIHandlers struct {
	Auth    *AuthHandler
	Scan    *ScanHandler
	Senders *SendersHandler
	Plan    *PlanHandler
	Actions *ActionsHandler
	Audit   *AuditHandler
}

func InitHandlers(s *services.Services) *APIHandlers {
	return &APIHandlers{
		Auth:    NewAuthHandler(s.Auth),
		Scan:    NewScanHandler(s.Scanner, s.Stats, s.Scorer, s.MaxMessages),
		Senders: NewSendersHandler(s.Stats, s.Scorer),
		Plan:    NewPlanHandler(s.Planner, s.Simulator),
		Actions: NewActionsHandler(s.Executor, s.Undo),
		Audit:   NewAuditHandler(s.Audit),
	}
}
