package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID            = errors.New("invalid_reading_id")
	ErrInvalidDevice        = errors.New("invalid_device_id")
	ErrDeviceNotFound       = errors.New("device_not_found")
	ErrNotFound             = errors.New("reading_not_found")
	ErrInvalidDate          = errors.New("invalid_date")
	ErrEmissionBeforeRead   = errors.New("emission_date_before_reading_date")
	ErrDuplicateBillingDate = errors.New("reading_exists_for_billing_date")
)

// IllegalTransitionError names the attempted action and the state that
// forbids it. Illegal transitions are never silently ignored.
type IllegalTransitionError struct {
	Action string
	State  ReadingState
}

func (e *IllegalTransitionError) Error() string {
	if e.Action == "revert" && e.State == StateInvoiced {
		return "cannot revert an invoiced reading"
	}
	return fmt.Sprintf("cannot %s reading in state %q", e.Action, e.State)
}

// CounterRegressionError rejects a current counter below its previous value.
type CounterRegressionError struct {
	Channel  string
	Previous int64
	Current  int64
}

func (e *CounterRegressionError) Error() string {
	return fmt.Sprintf("%s counter regression: current %d is below previous %d", e.Channel, e.Current, e.Previous)
}
