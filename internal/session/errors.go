package session

import (
	"errors"

	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

var (
	// ErrRoundNotFound is the store sentinel so callers can test either.
	ErrRoundNotFound = store.ErrRoundNotFound
	// ErrUserNotFound likewise
	ErrUserNotFound = store.ErrUserNotFound
	// ErrRejoinDenied participant already left or lost this round
	ErrRejoinDenied = errors.New("participant cannot rejoin this round")
	// ErrNotInRoster participant is not on the round's roster
	ErrNotInRoster = errors.New("participant is not registered for this round")
	// ErrConnectionClosed the connection went away before it could be tagged
	ErrConnectionClosed = errors.New("connection closed")
	// ErrIdentityConflict connection is already tagged to another round or participant
	ErrIdentityConflict = errors.New("connection already bound to another participant")
	// ErrInvalidAmount negative or zero amount where a positive one is required
	ErrInvalidAmount = errors.New("amount must be positive")
)
