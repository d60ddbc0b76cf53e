package queue

import (
	"fmt"

	"fortune-queue/internal/models"
)

// Action is an operation that may move an order to a new status.
type Action string

const (
	ActionConfirmPayment Action = "confirm_payment"
	ActionStart          Action = "start"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
)

// transitions is the full lifecycle table. Anything not listed here is an
// illegal transition; terminal states have no outgoing edges.
var transitions = map[string]map[Action]string{
	models.StatusPendingPayment: {
		ActionConfirmPayment: models.StatusQueued,
		ActionCancel:         models.StatusCancelled,
	},
	models.StatusQueued: {
		ActionStart:  models.StatusInProgress,
		ActionCancel: models.StatusCancelled,
	},
	models.StatusInProgress: {
		ActionComplete: models.StatusCompleted,
		ActionCancel:   models.StatusCancelled,
	},
}

// TransitionError reports an action applied to an order in the wrong status.
type TransitionError struct {
	OrderID string
	From    string
	Action  Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s from status %q", e.OrderID, e.Action, e.From)
}

// Transition returns the status an order moves to when action is applied,
// or a TransitionError if the lifecycle table has no such edge.
func Transition(orderID, current string, action Action) (string, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", &TransitionError{OrderID: orderID, From: current, Action: action}
}
