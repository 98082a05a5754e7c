// Package services defines the business logic for conversations, the
// message-processing pipeline, and appointment booking. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the current caller identity. Callers
	// must treat this as "cannot proceed", distinct from an empty
	// conversation, which is valid.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when a request to send a message contains
	// no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when an inbound web-chat message exceeds
	// the maximum configured length limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrInvalidStatus is returned when a conversation close is requested
	// with a non-terminal status.
	ErrInvalidStatus = errors.New("status must be COMPLETED or APPOINTMENT_BOOKED")
)
