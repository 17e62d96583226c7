package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")

	// Submission (validation) errors
	ErrEmptyEntries       = errors.New("all archetype entries are empty")
	ErrUnknownArchetype   = errors.New("unknown archetype key")
	ErrChallengeNotActive = errors.New("challenge is not active")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// AI analysis errors
	ErrCompletionPending = errors.New("a completion request is already in progress")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrUnauthorized   = errors.New("unauthorized")
)
