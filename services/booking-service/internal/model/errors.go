package model

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrSlotUnavailable   = errors.New("slot no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
)
