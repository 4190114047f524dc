package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewOutsideHours signals ticket creation outside the allowed schedule window.
func NewOutsideHours(startHour, endHour int) error {
	return NewDomainError("OUTSIDE_HOURS", "ticket creation is outside allowed hours", http.StatusForbidden, map[string]any{
		"start_hour": startHour,
		"end_hour":   endHour,
	})
}

// NewAlreadyOpen signals a requester already holds an open ticket; carries the
// existing channel so the caller can point the user back at it.
func NewAlreadyOpen(channelID string) error {
	return NewDomainError("ALREADY_OPEN", "you already have an open ticket", http.StatusConflict, map[string]any{
		"channel_id": channelID,
	})
}

// NewCreateInProgress rejects a create attempt racing an in-flight one for the
// same requester and category; it shares the ALREADY_OPEN code since the
// outcome for the user is the same.
func NewCreateInProgress() error {
	return NewDomainError("ALREADY_OPEN", "a ticket is already being created for you", http.StatusConflict, map[string]any{
		"in_progress": true,
	})
}

// NewAlreadyClosed signals a close attempt on a ticket already in its terminal state.
func NewAlreadyClosed(ticketID string) error {
	return NewDomainError("ALREADY_CLOSED", "ticket is already closed", http.StatusConflict, map[string]any{
		"ticket_id": ticketID,
	})
}

// NewNotATicketChannel signals an operation on a channel with no ticket record bound to it.
func NewNotATicketChannel(channelID string) error {
	return NewDomainError("NOT_A_TICKET_CHANNEL", "this channel is not a ticket channel", http.StatusNotFound, map[string]any{
		"channel_id": channelID,
	})
}

// NewInsufficientCapability signals a participant lacking the category's required role.
func NewInsufficientCapability(targetID string) error {
	return NewDomainError("INSUFFICIENT_CAPABILITY", "target user lacks the required role for this ticket category", http.StatusForbidden, map[string]any{
		"target_id": targetID,
	})
}

// NewChannelCreateFailed signals a platform-side channel creation failure.
func NewChannelCreateFailed(err error) error {
	return &DomainError{
		Code:       "CHANNEL_CREATE_FAILED",
		Message:    "could not create the ticket channel",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewDeliveryFailed signals a non-fatal direct-message delivery failure.
func NewDeliveryFailed(userID string, err error) error {
	return &DomainError{
		Code:       "DELIVERY_FAILED",
		Message:    "could not deliver the direct message; the recipient may have DMs disabled",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"user_id": userID},
		Err:        err,
	}
}

// NewExternalError wraps a platform call failure on a critical step.
func NewExternalError(op string, err error) error {
	return &DomainError{
		Code:       "EXTERNAL_ERROR",
		Message:    fmt.Sprintf("platform call failed: %s", op),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPersistenceError wraps a record store write failure.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_FAILED",
		Message:    "could not persist the record store",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
