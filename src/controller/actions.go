package controller

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnknownSymbol      = fmt.Errorf("%w: unknown symbol", ErrInvalidArgument)
	ErrUnknownAction      = fmt.Errorf("%w: unknown action", ErrInvalidArgument)
	ErrDuplicateSignal    = errors.New("duplicate signal")
	ErrMissingCredentials = errors.New("missing credentials")
)

// Action is one of the four order actions a signal can request.
type Action int

const (
	ActionOpenLong Action = iota + 1
	ActionOpenShort
	ActionCloseLong
	ActionCloseShort
)

// ActionKey joins direction and comment the way alerts encode them, e.g. "buy_go_long".
func ActionKey(direction, comment string) string {
	return strings.ToLower(strings.TrimSpace(direction)) + "_" + strings.ToLower(strings.TrimSpace(comment))
}

// ParseAction maps a (direction, comment) pair to an Action.
func ParseAction(direction, comment string) (Action, error) {
	switch key := ActionKey(direction, comment); key {
	case "buy_go_long":
		return ActionOpenLong, nil
	case "sell_go_short":
		return ActionOpenShort, nil
	case "sell_exit_long":
		return ActionCloseLong, nil
	case "buy_exit_short":
		return ActionCloseShort, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownAction, key)
	}
}

func (a Action) String() string {
	switch a {
	case ActionOpenLong:
		return "open_long"
	case ActionOpenShort:
		return "open_short"
	case ActionCloseLong:
		return "close_long"
	case ActionCloseShort:
		return "close_short"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// IsOpen reports whether the action places a new market order.
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// Description is the human label used in router responses.
func (a Action) Description() string {
	switch a {
	case ActionOpenLong:
		return "Opened long position"
	case ActionOpenShort:
		return "Opened short position"
	case ActionCloseLong:
		return "Closed long position"
	case ActionCloseShort:
		return "Closed short position"
	default:
		return "Unknown action"
	}
}
