package tools

import "errors"

var (
	ErrNotFound         = errors.New("tool not found")
	ErrAlreadyExists    = errors.New("tool already registered")
	ErrEmptyName        = errors.New("tool name is empty")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
