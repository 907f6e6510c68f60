package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ============================================================================
// SENTINEL ERRORS
// ============================================================================

var (
	// ErrSeatsNotLocked is wrapped by a ConflictError when a booking is created
	// for seats the caller does not hold
	ErrSeatsNotLocked = errors.New("seats are not locked by this session")

	// ErrVersionMismatch is wrapped by a ConflictError when a compare-and-set lost a race
	ErrVersionMismatch = errors.New("record changed since it was read")

	// ErrDuplicateReference is returned by stores when a booking reference already exists
	ErrDuplicateReference = errors.New("booking reference already exists")

	// ErrActiveSessionExists is returned by stores when a booking already has an active payment session
	ErrActiveSessionExists = errors.New("booking already has an active payment session")

	// ErrPaymentTimeout is returned when the gateway did not answer in time
	ErrPaymentTimeout = errors.New("payment gateway timed out")
)

// ============================================================================
// ERROR TYPES
// ============================================================================

// ValidationError reports malformed input
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil && e.Field != "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConflictError reports a seat already held by someone else or a lost
// optimistic race. Seats is set for seat conflicts.
type ConflictError struct {
	Resource string
	Seats    []int
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	var b strings.Builder
	if e.Resource != "" {
		b.WriteString(e.Resource)
		b.WriteString(" conflict")
	} else {
		b.WriteString("conflict")
	}
	if len(e.Seats) > 0 {
		seats := append([]int(nil), e.Seats...)
		sort.Ints(seats)
		fmt.Fprintf(&b, ": seats %v unavailable", seats)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e ConflictError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown booking, session, schedule or reference
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ExpiredError reports a hold or session acted on after its TTL
type ExpiredError struct {
	Resource  string
	ID        string
	ExpiredAt time.Time
}

func (e ExpiredError) Error() string {
	if e.ExpiredAt.IsZero() {
		return fmt.Sprintf("%s %s has expired", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s %s expired at %s", e.Resource, e.ID, e.ExpiredAt.UTC().Format(time.RFC3339))
}

// InvalidTransitionError reports an illegal state change. It is also used
// when an operation requires a state the record is not in.
type InvalidTransitionError struct {
	Resource string
	From     string
	To       string
	Msg      string
}

func (e InvalidTransitionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Resource, e.Msg)
	}
	return fmt.Sprintf("%s cannot move from %s to %s", e.Resource, e.From, e.To)
}

// GatewayDeclinedError is the deterministic payment failure outcome
type GatewayDeclinedError struct {
	PaymentID string
	Reason    string
}

func (e GatewayDeclinedError) Error() string {
	return fmt.Sprintf("payment %s declined: %s", e.PaymentID, e.Reason)
}

// NotCancellableError reports a cancellation after departure
type NotCancellableError struct {
	HoursBeforeDeparture float64
}

func (e NotCancellableError) Error() string {
	return fmt.Sprintf("trip already departed (%.1fh before departure), booking cannot be cancelled", e.HoursBeforeDeparture)
}

// ForbiddenError reports a caller acting on a booking it does not own
type ForbiddenError struct {
	Resource string
	ID       string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s does not belong to the caller", e.Resource, e.ID)
}

// ============================================================================
// HELPERS
// ============================================================================

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

// ConflictSeats returns the conflicting seats carried by err, if any
func ConflictSeats(err error) []int {
	var target ConflictError
	if errors.As(err, &target) {
		return target.Seats
	}
	return nil
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsExpired(err error) bool {
	var target ExpiredError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

func IsGatewayDeclined(err error) bool {
	var target GatewayDeclinedError
	return errors.As(err, &target)
}

func IsNotCancellable(err error) bool {
	var target NotCancellableError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}
