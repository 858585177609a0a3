package conversation

import (
	"errors"
	"fmt"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
)

var (
	ErrUnrecognized     = errors.New("conversation: input not recognized")
	ErrInvalidDate      = errors.New("conversation: invalid travel date")
	ErrPastDate         = errors.New("conversation: travel date in the past")
	ErrInvalidTime      = errors.New("conversation: invalid travel time")
	ErrPastTime         = errors.New("conversation: travel time already passed")
	ErrInvalidPax       = errors.New("conversation: invalid passenger count")
	ErrInvalidPickup    = errors.New("conversation: invalid pickup location")
	ErrInvalidName      = errors.New("conversation: invalid guest name")
	ErrInvalidPhone     = errors.New("conversation: invalid phone number")
	ErrNoAvailability   = errors.New("conversation: no vehicles available")
	ErrSessionNotFound  = errors.New("conversation: session not found")
	ErrUnsupportedState = errors.New("conversation: unsupported state")
)

// UserInputError leaves the session untouched and answers with a corrective prompt.
type UserInputError struct {
	Cause   error
	Replies []messaging.Message
}

func (e *UserInputError) Error() string {
	if e.Cause == nil {
		return "conversation: invalid input"
	}
	return e.Cause.Error()
}

func (e *UserInputError) Unwrap() error { return e.Cause }

// Prompt returns the first corrective message body.
func (e *UserInputError) Prompt() string {
	if len(e.Replies) == 0 {
		return ""
	}
	return e.Replies[0].Body
}

func inputError(cause error, replies ...messaging.Message) *UserInputError {
	return &UserInputError{Cause: cause, Replies: replies}
}

// ExternalServiceError marks a failed call to the catalog, LLM or payment provider.
// The turn is discarded and the guest is asked to try again.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("conversation: %s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func externalError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

// DataIntegrityError means the stored session no longer matches reality.
// The engine resets the session to ResetTo and persists it.
type DataIntegrityError struct {
	ResetTo State
	Reason  string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("conversation: data integrity: %s (reset to %s)", e.Reason, e.ResetTo)
}
