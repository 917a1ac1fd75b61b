package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrEngineNotConfigured = errors.New("engine not configured")
	ErrAlreadyResolved     = errors.New("check already resolved")
)
