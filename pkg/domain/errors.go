package domain

import "errors"

// ErrTaskNotFound is returned when a task ID cannot be found in the registry.
var ErrTaskNotFound = errors.New("task not found")

// ErrSessionNotFound is returned when a session ID cannot be found in the registry.
var ErrSessionNotFound = errors.New("session not found")

// ErrApprovalNotFound is returned when an approval request is unknown or already settled.
var ErrApprovalNotFound = errors.New("approval request not found")

// ErrApprovalConflict is returned when an owner already has an outstanding approval request.
var ErrApprovalConflict = errors.New("approval request already pending")

// ErrApprovalCancelled is returned by an approval wait that was cancelled before a decision arrived.
var ErrApprovalCancelled = errors.New("approval wait cancelled")

// ErrOwnerCompleted is returned when appending to a log that has been completed.
var ErrOwnerCompleted = errors.New("owner already completed")

// ErrCursorExpired is returned when a cursor points below the retained part of a log.
var ErrCursorExpired = errors.New("cursor expired")

// ErrSlowConsumer is returned to a subscriber that was disconnected because its queue overflowed.
var ErrSlowConsumer = errors.New("subscriber disconnected: queue overflow")

// ErrInvalidPart is returned when a part does not carry exactly one of text, file, or data.
var ErrInvalidPart = errors.New("part must contain exactly one of text, file, or data")
