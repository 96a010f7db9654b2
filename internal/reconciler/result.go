package reconciler

import (
	"chart-advisor/internal/database"
)

// Reconciliation action types.
const (
	ActionCreateNew      = "create_new"
	ActionMaintain       = "maintain"
	ActionClose          = "close_existing"
	ActionCloseAndCreate = "close_and_create"
	ActionNoAction       = "no_action"
)

// Result is the outcome of one reconciliation cycle. Failures are reported
// here as structured fields; nothing is raised past the reconcile boundary.
type Result struct {
	Success                         bool                    `json:"success"`
	ActionType                      string                  `json:"action_type"`
	ShouldPreserveExistingTargets   bool                    `json:"should_preserve_existing_targets"`
	ShouldDeactivateRecommendations bool                    `json:"should_deactivate_recommendations"`
	ClosedTrades                    []*database.TradeRecord `json:"closed_trades"`
	NewTrades                       []*database.TradeRecord `json:"new_trades"`
	Message                         string                  `json:"message"`
	Errors                          []string                `json:"errors,omitempty"`
}

func newResult() *Result {
	return &Result{
		ClosedTrades: []*database.TradeRecord{},
		NewTrades:    []*database.TradeRecord{},
	}
}

func (r *Result) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

func (r *Result) noAction(message string) *Result {
	r.Success = true
	r.ActionType = ActionNoAction
	r.Message = message
	return r
}

func (r *Result) failed(message string) *Result {
	r.Success = false
	r.ActionType = ActionNoAction
	r.Message = message
	return r
}
