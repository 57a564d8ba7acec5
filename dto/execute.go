package dto

import "github.com/customeros/mailclean/internal/enum"

// ExecuteRequest is one executor invocation. PlanID is empty for ad-hoc
// actions outside a plan.
type ExecuteRequest struct {
	TargetEmail     string
	Action          enum.Action
	ListUnsubscribe string
	PlanID          string
}
