package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidCart = errors.New("invalid cart")

type ViolationCode string

const (
	CodeEmptyCart           ViolationCode = "empty_cart"
	CodeInvalidQuantity     ViolationCode = "invalid_quantity"
	CodeQuantityLimit       ViolationCode = "quantity_limit"
	CodeDuplicateTicketType ViolationCode = "duplicate_ticket_type"
	CodeUnknownTicketType   ViolationCode = "unknown_ticket_type"
	CodeDependentNoGuardian ViolationCode = "dependent_without_guardian"
	CodeInvalidLink         ViolationCode = "invalid_link"
	CodeUnavailableOnDate   ViolationCode = "unavailable_on_date"
	CodePastDate            ViolationCode = "past_date"
	CodeCapacityExceeded    ViolationCode = "capacity_exceeded"
	CodeStockExceeded       ViolationCode = "stock_exceeded"
)

type Violation struct {
	Code         ViolationCode
	TicketTypeID *uuid.UUID
	Message      string
}

func violation(code ViolationCode, id *uuid.UUID, msg string) Violation {
	return Violation{Code: code, TicketTypeID: id, Message: msg}
}

// ValidationError lists every rule a cart breaks. It unwraps to ErrInvalidCart.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Code, v.Message))
	}
	return "invalid cart: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCart
}

func (e *ValidationError) Has(code ViolationCode) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

type WarningCode string

const (
	WarnDependentRemoved WarningCode = "dependent_removed"
	WarnLowCapacity      WarningCode = "low_capacity"
)

type Warning struct {
	Code         WarningCode
	TicketTypeID *uuid.UUID
	Message      string
}
