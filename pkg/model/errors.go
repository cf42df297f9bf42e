package model

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when a punishment is used in a way its
// registration state does not allow.
var ErrInvalidState = errors.New("invalid punishment state")

var (
	ErrNotRegistered      = fmt.Errorf("%w: punishment is not registered", ErrInvalidState)
	ErrAlreadyRegistered  = fmt.Errorf("%w: punishment is already registered", ErrInvalidState)
	ErrUnknownPunishment  = errors.New("unknown punishment type")
	ErrInvalidPersistedID = errors.New("persisted id must be positive")
)
