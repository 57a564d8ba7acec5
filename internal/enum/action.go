package enum

import "strings"

// Action is the closed set of per-sender cleanup actions.
type Action string

const (
	ActionNone        Action = "none"
	ActionUnsubscribe Action = "unsubscribe"
	ActionDelete      Action = "delete"
)

func (a Action) String() string {
	return string(a)
}

// Executable reports whether the executor can apply the action.
func (a Action) Executable() bool {
	switch a {
	case ActionUnsubscribe, ActionDelete:
		return true
	case ActionNone:
		return false
	default:
		return false
	}
}

// ParseAction maps user input to an Action. Unknown values return false.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionUnsubscribe:
		return ActionUnsubscribe, true
	case ActionDelete:
		return ActionDelete, true
	case ActionNone:
		return ActionNone, true
	default:
		return "", false
	}
}

type ExecutionState string

const (
	ExecutionSucceeded ExecutionState = "succeeded"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionPartial   ExecutionState = "partial"
)

func (s ExecutionState) String() string {
	return string(s)
}

type UndoState string

const (
	UndoActive   UndoState = "active"
	UndoConsumed UndoState = "consumed"
	UndoExpired  UndoState = "expired"
	UndoFailed   UndoState = "failed"
)

func (s UndoState) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s UndoState) Terminal() bool {
	return s != UndoActive
}

// InverseKind identifies how an execution is reverted.
type InverseKind string

const (
	InverseRemoveLabel InverseKind = "remove_label"
	InverseUntrash     InverseKind = "untrash"
)

func (k InverseKind) String() string {
	return string(k)
}
