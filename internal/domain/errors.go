package domain

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrValidation       = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)
